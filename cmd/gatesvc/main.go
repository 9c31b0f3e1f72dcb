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
	"github.com/nats-io/nats.go"

	config "github.com/avvvet/gatepass-services/configs"
	"github.com/avvvet/gatepass-services/internal/comm"
	"github.com/avvvet/gatepass-services/internal/db"
	"github.com/avvvet/gatepass-services/internal/gatesvc/broker"
	gateconfig "github.com/avvvet/gatepass-services/internal/gatesvc/config"
	"github.com/avvvet/gatepass-services/internal/gatesvc/feed"
	handlers "github.com/avvvet/gatepass-services/internal/gatesvc/handlers"
	"github.com/avvvet/gatepass-services/internal/gatesvc/service"
	"github.com/avvvet/gatepass-services/internal/gatesvc/store"
	natsconn "github.com/avvvet/gatepass-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "gate"

const gaugeInterval = 30 * time.Second

func main() {
	config.LoadEnv(SERVICE_NAME)

	cfg, err := gateconfig.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	instanceId := config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME+"_service_"+instanceId[:8], cfg.LogLevel)

	ctx, stopApp := context.WithCancel(context.Background())
	defer stopApp()

	// mongo connection
	client, database, err := db.ConnectToDB(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Errorf("mongo disconnect: %v", err)
		}
	}()
	log.Printf("mongo connection established successfully, db %s", database.Name())

	if err := db.CreateIndexes(ctx, database, store.Indexes()); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	visitorStore := store.NewVisitorStore(database)
	sessionStore := store.NewSessionStore(database)
	groupStore := store.NewGroupStore(database)
	cardStore := store.NewCardStore(database)

	hub := feed.NewHub(instanceId, nil)

	// gate events go over NATS when it is reachable, otherwise straight to
	// the consoles connected to this instance
	var events service.EventPublisher = hub
	var sub *nats.Subscription
	n, err := natsconn.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+"-"+instanceId)
	if err != nil {
		log.Warnf("unable to connect to NATS server, publishing events locally: %v", err)
	} else {
		defer n.Conn.Close()
		log.Printf("NATS connection established successfully %s", n.Url)

		b := broker.NewBroker(n.Conn, instanceId)
		sub, err = b.Subscribe(func(msg *comm.Message) { hub.Broadcast(msg) })
		if err != nil {
			log.Fatalf("Error: unable to subscribe to %s %v", broker.Topic, err)
		}
		events = b
	}

	cardService := service.NewCardService(cardStore)
	checkinService := service.NewCheckinService(visitorStore, sessionStore, groupStore, cardStore, events, cfg.Location)
	checkoutService := service.NewCheckoutService(sessionStore, groupStore, cardStore, events)
	queryService := service.NewQueryService(visitorStore, sessionStore, groupStore, cfg.Location)
	reconcileService := service.NewReconcileService(sessionStore, groupStore, cardStore, cfg.OrphanGrace)

	go func() {
		ticker := time.NewTicker(gaugeInterval)
		defer ticker.Stop()
		for {
			cardService.RefreshGauge(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	// Setup router
	r := chi.NewRouter()
	c := config.CORS(cfg.CORSOrigins)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(handlers.Options{
		Cards:        cardService,
		Checkin:      checkinService,
		Checkout:     checkoutService,
		Query:        queryService,
		Reconcile:    reconcileService,
		Hub:          hub,
		InitPassword: cfg.InitPassword,
		PoolSize:     cfg.CardPoolSize,
		Port:         cfg.Port,
	})
	h.InitAuth(cfg.JWTSecret)
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
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

	stopApp()
	if sub != nil {
		sub.Unsubscribe()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
