// Package main provides the API server entry point for the scan admission service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/scan-admission/internal/api"
	"github.com/scan-admission/internal/auth"
	"github.com/scan-admission/internal/config"
	"github.com/scan-admission/internal/logging"
	"github.com/scan-admission/internal/quota"
	"github.com/scan-admission/internal/service"
	"github.com/scan-admission/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Every tier and scan type combination must resolve to a policy before
	// the service takes traffic.
	if err := quota.ValidateTable(); err != nil {
		logger.WithError(err).Fatal("Quota policy table is incomplete")
	}

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisClient(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// ClickHouse only receives best-effort audit events; a failed connect
	// degrades to no auditing instead of refusing to start.
	var eventRepo *storage.ScanEventRepository
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable, audit events disabled")
	} else {
		defer clickhouse.Close()
		if err := clickhouse.EnsureSchema(context.Background()); err != nil {
			logger.WithError(err).Warn("ClickHouse schema setup failed, audit events disabled")
		} else {
			eventRepo = storage.NewScanEventRepository(clickhouse)
		}
	}

	logger.Info("Database connections established")

	// Initialize repositories and services
	profileRepo := storage.NewProfileRepository(postgres)
	sessionStore := auth.NewSessionStore(redis.Client(), cfg.Auth.SessionKeyPrefix, cfg.Auth.SessionTTL)

	admissionConfig := &service.AdmissionServiceConfig{
		Profiles:         profileRepo,
		MaxWriteAttempts: cfg.Admission.MaxWriteAttempts,
		RetryDelay:       cfg.Admission.RetryDelay,
	}
	if eventRepo != nil {
		admissionConfig.Recorder = eventRepo
	}

	admissionService, err := service.NewAdmissionService(admissionConfig)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize admission service")
	}

	verifier := service.NewStaticPurchaseVerifier(cfg.Billing.AcceptedProducts)
	accountService := service.NewAccountService(profileRepo, verifier)

	logger.Info("Services initialized")

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimitRPS:    cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst:  cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, admissionService, accountService, sessionStore)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("Server stopped")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Scan admission service started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	logger.Info("Server stopped")
}
