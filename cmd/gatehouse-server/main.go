package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/db"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/authmode"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/passback"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/pipeline"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/propagate"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/protocol"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/service"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store/memory"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store/sqlite"
	"github.com/gatehouse-io/gatehouse/internal/httpapi"
	"github.com/gatehouse-io/gatehouse/internal/obs"
)

func main() {
	logger := log.New(os.Stdout, "gatehouse-server ", log.LstdFlags|log.LUTC)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	deviceRecords, err := cfg.DeviceRecords()
	if err != nil {
		logger.Fatalf("config devices: %v", err)
	}

	obs.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: sqlite in prod, memory in dev.
	var (
		passbackStates store.PassbackStateStore
		deviceStore    store.DeviceStore
		decisionStore  store.DecisionStore
		heartbeatStore store.HeartbeatStore
	)
	if cfg.Env == "prod" {
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			logger.Fatalf("db open: %v", err)
		}
		defer conn.Close()

		if err := db.UpsertDevices(ctx, conn, deviceRecords); err != nil {
			logger.Fatalf("db devices: %v", err)
		}

		writer := db.NewWorker(conn)
		defer writer.Close()

		passbackStates = sqlite.NewPassbackStateStore(conn, writer)
		deviceStore = sqlite.NewDeviceStore(conn, writer)
		decisionStore = sqlite.NewDecisionStore(conn, writer)
		heartbeatStore = sqlite.NewHeartbeatStore(conn, writer)
	} else {
		passbackStates = memory.NewPassbackStateStore()
		deviceStore = memory.NewDeviceStore(deviceRecords)
		decisionStore = memory.NewDecisionStore()
		heartbeatStore = memory.NewHeartbeatStore()
	}

	tracker := passback.NewTracker(passbackStates)
	adapters := protocol.NewRegistry(
		protocol.NewHTTPAdapter(cfg.DeviceTimeout),
		protocol.NewTCPAdapter(cfg.DeviceTimeout),
	)

	constraints, err := pipeline.LoadConstraints(cfg.ConstraintsFile)
	if err != nil {
		logger.Fatalf("constraints: %v", err)
	}
	if len(constraints) > 0 {
		logger.Printf("loaded %d area constraints from %s", len(constraints), cfg.ConstraintsFile)
	}

	// Credential directory: permissive in dev until a real directory is
	// attached; deployments plug their own implementation in here.
	registry := authmode.NewDefaultRegistry(authmode.AllowAllDirectory{})

	pipe := pipeline.New(pipeline.Dependencies{
		Logger:        logger,
		Stages:        pipeline.DefaultStages(tracker, constraints, registry),
		Tracker:       tracker,
		Devices:       deviceStore,
		Adapters:      adapters,
		Decisions:     decisionStore,
		UnlockOnGrant: cfg.UnlockOnGrant,
		DeviceTimeout: cfg.DeviceTimeout,
	})

	propagator := propagate.New(propagate.Dependencies{
		Logger:          logger,
		Devices:         deviceStore,
		Adapters:        adapters,
		Workers:         cfg.PropagatorWorkers,
		QueueSize:       cfg.PropagatorQueue,
		MaxAttempts:     cfg.PushMaxAttempts,
		RetryBackoff:    cfg.PushRetryBackoff,
		PushesPerSecond: cfg.PushesPerSecond,
		DeviceTimeout:   cfg.DeviceTimeout,
		StaleAfter:      cfg.DeviceStaleAfter,
		WatermarkTTL:    cfg.WatermarkTTL,
	})
	propagator.Start(ctx)

	deviceRegistry := service.NewDeviceRegistry(deviceStore)
	accessSvc := service.NewAccessService(deviceRegistry, pipe, tracker, decisionStore, logger)
	heartbeatSvc := service.NewHeartbeatService(heartbeatStore, deviceRegistry)

	pruner := service.NewHeartbeatPruner(heartbeatStore, cfg.HeartbeatRetention, cfg.PruneInterval, logger)
	pruner.Start(ctx)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:           logger,
		Addr:             cfg.HTTPAddr,
		AccessService:    accessSvc,
		HeartbeatService: heartbeatSvc,
		Permissions:      propagator,
	})

	go func() {
		logger.Printf("listening on %s (env=%s)", cfg.HTTPAddr, cfg.Env)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	pruner.Stop()
	propagator.Wait()
}
