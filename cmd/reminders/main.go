// Package main runs one scan reminder sweep. Intended to be invoked from a
// scheduler (cron or similar); it lists free-tier users whose quota windows
// have elapsed and emits a reminder for each.
package main

import (
	"context"
	"log"

	"github.com/scan-admission/internal/config"
	"github.com/scan-admission/internal/logging"
	"github.com/scan-admission/internal/service"
	"github.com/scan-admission/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	profileRepo := storage.NewProfileRepository(postgres)
	reminderService := service.NewReminderService(profileRepo, service.LogNotifier{})

	sent, err := reminderService.Sweep(context.Background())
	if err != nil {
		logger.WithError(err).Fatal("Reminder sweep failed")
	}

	logger.WithField("sent", sent).Info("Reminder sweep completed")
}
