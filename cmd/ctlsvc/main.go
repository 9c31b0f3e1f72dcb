package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/gatepass-services/configs"
	"github.com/avvvet/gatepass-services/internal/comm"
	"github.com/avvvet/gatepass-services/internal/db"
	"github.com/avvvet/gatepass-services/internal/gatesvc/broker"
	gateconfig "github.com/avvvet/gatepass-services/internal/gatesvc/config"
	"github.com/avvvet/gatepass-services/internal/gatesvc/service"
	"github.com/avvvet/gatepass-services/internal/gatesvc/store"
	natsconn "github.com/avvvet/gatepass-services/internal/nats"
)

const SERVICE_NAME = "ctl"

// ctlsvc runs reconciliation on a schedule so that interrupted check-ins
// and checkouts are repaired without an admin calling the endpoint.
func main() {
	config.LoadEnv(SERVICE_NAME)

	cfg, err := gateconfig.LoadController()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	instanceId := config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME+"_service_"+instanceId[:8], cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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

	reconciler := service.NewReconcileService(
		store.NewSessionStore(database),
		store.NewGroupStore(database),
		store.NewCardStore(database),
		cfg.OrphanGrace,
	)

	// Connect to NATS
	var b *broker.Broker
	n, err := natsconn.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+"-"+instanceId)
	if err != nil {
		log.Warnf("unable to connect to NATS server, repairs will not be announced: %v", err)
	} else {
		defer n.Conn.Close()
		log.Printf("NATS connection established successfully %s", n.Url)
		b = broker.NewBroker(n.Conn, instanceId)
	}

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()
	log.Infof("%s service reconciling every %s", SERVICE_NAME, cfg.ReconcileInterval)

	for {
		runOnce(ctx, reconciler, b)

		select {
		case <-ctx.Done():
			log.Infof("%s service gracefully stopped", SERVICE_NAME)
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, reconciler *service.ReconcileService, b *broker.Broker) {
	report, err := reconciler.Reconcile(ctx)
	if err != nil {
		log.Errorf("reconcile error: %v", err)
		return
	}
	if !report.Changed() {
		return
	}

	log.WithFields(log.Fields{
		"members_checked_out": report.MembersCheckedOut,
		"cards_released":      report.CardsReleased,
		"sessions_closed":     report.SessionsClosed,
		"sessions_reopened":   report.SessionsReopened,
		"groups_linked":       report.GroupsLinked,
	}).Info("reconciliation repaired gate state")

	if b == nil {
		return
	}
	if err := b.Publish(ctx, comm.EventReconciled, report); err != nil {
		log.Warnf("unable to publish %s: %v", comm.EventReconciled, err)
	}
}
