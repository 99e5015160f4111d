// Package main implements the telemetry-core server: sensor fusion,
// positioning, proximity safety alerts, and the device registry for a
// fleet of connected devices.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/asgard/telemetry-core/internal/adapter/http"
	"github.com/asgard/telemetry-core/internal/adapter/natsbridge"
	"github.com/asgard/telemetry-core/internal/adapter/realtime"
	"github.com/asgard/telemetry-core/internal/config"
	"github.com/asgard/telemetry-core/internal/observability"
	"github.com/asgard/telemetry-core/internal/persistence"
	"github.com/asgard/telemetry-core/internal/persistence/mongosnapshot"
	"github.com/asgard/telemetry-core/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	log.Println("=== telemetry-core ===")

	shutdownTracing, err := observability.InitTracing(context.Background(), "telemetry-core")
	if err != nil {
		log.Printf("Tracing disabled: %v", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				log.Printf("Tracing shutdown error: %v", err)
			}
		}()
	}

	cfg := config.Load()

	var snapshot telemetry.SnapshotStore
	switch cfg.SnapshotBackend {
	case "mongo":
		mongoStore, err := mongosnapshot.New(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			log.Printf("Warning: Mongo snapshot backend unavailable (%v), falling back to file store", err)
			snapshot = persistence.NewFileStore(cfg.SnapshotPath)
		} else {
			defer mongoStore.Close(context.Background())
			snapshot = mongoStore
			log.Printf("Snapshot backend: mongo (%s/%s)", cfg.MongoDatabase, cfg.MongoCollection)
		}
	default:
		snapshot = persistence.NewFileStore(cfg.SnapshotPath)
	}

	store := telemetry.NewStore(cfg.DeviceTTL, time.Now, snapshot)
	store.LoadSnapshot()

	fusion := telemetry.NewFusionEngine(telemetry.FusionConfig{
		SmoothingWindow:           cfg.Fusion.SmoothingWindow,
		SensorConfidenceThreshold: cfg.Safety.SensorConfidenceThreshold,
	})
	positions := telemetry.NewPositioningEngine(telemetry.PositioningConfig{
		RSSIMeasuredAt1M:     cfg.Indoor.RSSIMeasuredAt1M,
		RSSIPathLossExponent: cfg.Indoor.RSSIPathLossExponent,
		MinBaseStations:      cfg.Indoor.MinBaseStations,
	}, store, time.Now)
	proximity := telemetry.NewProximityScanner(telemetry.ProximityConfig{
		WarningDistanceMeters:   cfg.Safety.WarningDistanceMeters,
		CollisionDistanceMeters: cfg.Safety.CollisionDistanceMeters,
	})
	alertBuilder := telemetry.NewAlertBuilder(telemetry.AlertConfig{
		MaxSpeedMS:  cfg.Safety.MaxSpeedMS,
		DedupWindow: cfg.DedupWindow,
	}, time.Now)

	broadcaster := realtime.NewBroadcaster()
	go broadcaster.Start()
	defer broadcaster.Stop()

	sink := telemetry.MultiSink{broadcaster}

	if cfg.NATSURL != "" {
		bridge, err := natsbridge.Connect(natsbridge.DefaultConfig(cfg.NATSURL))
		if err != nil {
			log.Printf("Warning: NATS bridge disabled: %v", err)
		} else {
			defer bridge.Close()
			sink = append(sink, bridge)
			log.Printf("NATS bridge connected to %s", cfg.NATSURL)
		}
	}

	dispatcher := telemetry.NewDispatcher(store, fusion, positions, proximity, alertBuilder, sink)

	sched, runCtx := telemetry.NewScheduler(context.Background())
	store.RunBackgroundTasks(runCtx, sched, 10*time.Second, 10*time.Second, dispatcher.OnPrune)
	sched.Every(runCtx, 10*time.Second, alertBuilder.Sweep)
	defer sched.Stop()

	router := httpadapter.NewRouter(store, dispatcher, broadcaster, cfg.CORSAllowedOrigins)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting HTTP server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Println("telemetry-core is ready and accepting connections")
	log.Println("Endpoints:")
	log.Println("  - Health:   GET    /healthz")
	log.Println("  - Metrics:  GET    /metrics")
	log.Println("  - Ingest:   POST   /ingest")
	log.Println("  - Devices:  GET    /devices, /devices/{id}, /devices/{id}/alerts")
	log.Println("  - Summary:  GET    /summary")
	log.Println("  - Realtime: WS     /ws")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down telemetry-core...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	store.PersistSnapshot()
	log.Println("telemetry-core stopped")
}
