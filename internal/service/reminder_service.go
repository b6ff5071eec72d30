package service

import (
	"context"
	"fmt"
	"time"

	"github.com/scan-admission/internal/logging"
	"github.com/scan-admission/internal/models"
	"github.com/scan-admission/internal/quota"
	"github.com/scan-admission/internal/types"
)

// ProfileLister is the persistence port for the reminder sweep.
type ProfileLister interface {
	ListFreeWithPushToken(ctx context.Context) ([]*models.UserProfile, error)
}

// Reminder tells one user that one scan type is available again.
type Reminder struct {
	UserID    string
	Username  string
	PushToken string
	ScanType  types.ScanType
	Title     string
	Body      string
}

// Notifier delivers reminders. Push delivery mechanics live outside this
// service; LogNotifier is the built-in fallback.
type Notifier interface {
	Notify(ctx context.Context, reminder *Reminder) error
}

// LogNotifier writes reminders to the structured log instead of a push
// channel.
type LogNotifier struct{}

// Notify logs the reminder.
func (LogNotifier) Notify(ctx context.Context, reminder *Reminder) error {
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"userId":   reminder.UserID,
		"scanType": reminder.ScanType,
		"title":    reminder.Title,
	}).Info("Scan reminder due")
	return nil
}

// Notification copy per scan type, matching the mobile client's wording.
var reminderTitles = map[types.ScanType]string{
	types.ScanHealth:    "Scan Santé Disponible",
	types.ScanBody:      "Scan Corps Disponible",
	types.ScanNutrition: "Scan Nutrition Disponible",
}

var reminderBodies = map[types.ScanType]string{
	types.ScanHealth:    "Votre scan santé hebdomadaire est maintenant disponible. Prenez soin de vous !",
	types.ScanBody:      "Votre scan corps mensuel est maintenant disponible. Suivez votre progression !",
	types.ScanNutrition: "Votre scan nutrition est maintenant disponible. Analysez vos repas !",
}

// ReminderService sweeps free-tier profiles and emits a reminder for every
// scan type whose quota window has fully elapsed.
type ReminderService struct {
	profiles ProfileLister
	notifier Notifier
	now      Clock
}

// NewReminderService creates a new reminder service.
func NewReminderService(profiles ProfileLister, notifier Notifier) *ReminderService {
	return &ReminderService{
		profiles: profiles,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sweep walks eligible profiles and notifies for each scan type that is
// available again. Returns the number of reminders sent; individual
// delivery failures are logged and skipped.
func (s *ReminderService) Sweep(ctx context.Context) (int, error) {
	profiles, err := s.profiles.ListFreeWithPushToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list profiles for reminders: %w", err)
	}

	logger := logging.FromContext(ctx)
	now := s.now()
	sent := 0

	for _, profile := range profiles {
		if profile.Notifications == nil || !profile.Notifications.Reminders {
			continue
		}
		if profile.PushToken == nil || *profile.PushToken == "" {
			continue
		}

		for _, scanType := range types.ScanTypes {
			due, err := s.isDue(profile, scanType, now)
			if err != nil {
				return sent, err
			}
			if !due {
				continue
			}

			reminder := &Reminder{
				UserID:    profile.ID,
				Username:  profile.Username,
				PushToken: *profile.PushToken,
				ScanType:  scanType,
				Title:     reminderTitles[scanType],
				Body:      reminderBodies[scanType],
			}
			if err := s.notifier.Notify(ctx, reminder); err != nil {
				logger.WithError(err).WithFields(map[string]interface{}{
					"userId":   profile.ID,
					"scanType": scanType,
				}).Warn("Failed to deliver scan reminder")
				continue
			}
			sent++
		}
	}

	return sent, nil
}

// isDue reports whether a full free-tier window has elapsed since the last
// scan of this type. Users who never scanned a type are due immediately.
func (s *ReminderService) isDue(profile *models.UserProfile, scanType types.ScanType, now time.Time) (bool, error) {
	policy, err := quota.PolicyFor(types.TierFree, scanType)
	if err != nil {
		return false, fmt.Errorf("quota policy lookup: %w", err)
	}

	record := profile.ScanUsage.Record(scanType)
	if record.LastScanAt == nil {
		return true, nil
	}
	return now.Sub(*record.LastScanAt) >= policy.Window, nil
}
