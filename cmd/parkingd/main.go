package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"qr-parking-backend/config"
	"qr-parking-backend/internal/api"
	"qr-parking-backend/internal/auth"
	"qr-parking-backend/internal/db"
	"qr-parking-backend/internal/live"
	"qr-parking-backend/internal/notification"
	"qr-parking-backend/internal/occupancy"
	"qr-parking-backend/internal/qr"
	"qr-parking-backend/internal/registration"
	"qr-parking-backend/internal/scan"
	"qr-parking-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "parkingd ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Admin.PasswordHash == "" || cfg.Admin.TokenSecret == "" {
		logger.Println("admin credentials are not configured; admin endpoints will reject every login")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	engine := occupancy.NewEngine(appStore, cfg.Scan.StorageTimeout)

	if cfg.Occupancy.ReconcileOnStart {
		changes, err := engine.Recount(ctx)
		if err != nil {
			logger.Fatalf("failed to reconcile area counters: %v", err)
		}
		logger.Printf("area counters reconciled, %d corrected", len(changes))
	}

	hub := live.NewHub()
	go hub.Run(ctx)

	gateway := scan.NewGateway(engine, cfg.Scan.Cooldown, cfg.Scan.SweepMultiplier, hub)

	var webpushOptions *webpush.Options
	var workerPool *notification.WorkerPool
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		workerPool.Start(ctx)
		gateway.Subscribe(workerPool)
		logger.Printf("push notifications enabled with %d workers", cfg.WorkerPool.Size)
	} else {
		logger.Println("VAPID keys are not configured; push notifications disabled")
	}

	handler := api.NewHandler(api.Deps{
		Store:        appStore,
		Engine:       engine,
		Gateway:      gateway,
		Registration: registration.NewService(appStore, qr.NewGenerator(cfg.QR.OutputDir, cfg.QR.Size, cfg.QR.ValidityDays)),
		Auth:         auth.NewService(cfg.Admin.PasswordHash, cfg.Admin.TokenSecret, time.Duration(cfg.Admin.TokenTTLMinutes)*time.Minute),
		WebPush:      webpushOptions,
		Location:     cfg.Reports.Location(),
		CacheTTL:     time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
	})

	router := api.NewRouter(handler, cfg.Server, hub)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}

	cancel()
	if workerPool != nil {
		workerPool.Wait()
	}

	logger.Println("Server gracefully stopped")
}
