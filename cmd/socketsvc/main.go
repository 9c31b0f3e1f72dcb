package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/gatepass-services/configs"
	"github.com/avvvet/gatepass-services/internal/comm"
	"github.com/avvvet/gatepass-services/internal/gatesvc/broker"
	gateconfig "github.com/avvvet/gatepass-services/internal/gatesvc/config"
	"github.com/avvvet/gatepass-services/internal/gatesvc/feed"
	handlers "github.com/avvvet/gatepass-services/internal/gatesvc/handlers"
	"github.com/avvvet/gatepass-services/internal/nats"
)

const SERVICE_NAME = "socket"

// socketsvc relays gate events from NATS to security consoles, so the
// live feed can scale apart from the gate API.
func main() {
	config.LoadEnv(SERVICE_NAME)

	cfg, err := gateconfig.LoadRelay()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	instanceId := config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME+"_service_"+instanceId[:8], cfg.LogLevel)

	// Connect to NATS
	n, err := nats.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+"-"+instanceId)
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(1)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	hub := feed.NewHub(instanceId, nil)

	// subscribe to gate service events
	b := broker.NewBroker(n.Conn, instanceId)
	sub, err := b.Subscribe(func(msg *comm.Message) { hub.Broadcast(msg) })
	if err != nil {
		log.Errorf("Error: unable to subscribe to %s %v", broker.Topic, err)
		os.Exit(1)
	}

	// Setup router
	r := chi.NewRouter()
	c := config.CORS(cfg.CORSOrigins)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(c.Handler)
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	h := handlers.NewHandler(handlers.Options{Hub: hub, Port: cfg.Port})
	h.InitAuth(cfg.JWTSecret)
	h.SetRelayRoutes(r)

	// no write timeout, sockets are long lived
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := sub.Unsubscribe(); err != nil {
		log.Warnf("unsubscribe %s: %v", broker.Topic, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
