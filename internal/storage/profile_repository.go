package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scan-admission/internal/models"
	"github.com/scan-admission/internal/types"
)

// Sentinel errors surfaced by the profile repository.
var (
	// ErrProfileNotFound indicates the user has no profile row.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrVersionConflict indicates a conditional write lost a race with a
	// concurrent update; the caller must reload and re-evaluate.
	ErrVersionConflict = errors.New("profile version conflict")
)

// ProfileRepository handles user profile persistence, including the scan
// usage ledger stored as a JSON column.
type ProfileRepository struct {
	db *PostgresDB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *PostgresDB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create inserts a new profile with an empty ledger
func (r *ProfileRepository) Create(ctx context.Context, profile *models.UserProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	if profile.Tier == "" {
		profile.Tier = types.TierFree
	}
	if !profile.Tier.Valid() {
		return &types.ServiceError{
			Code:    "INVALID_TIER",
			Message: fmt.Sprintf("invalid tier: %s (must be 'free' or 'premium')", profile.Tier),
		}
	}

	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	profile.Version = 0

	usageJSON, err := marshalLedger(profile.ScanUsage)
	if err != nil {
		return err
	}

	notificationsJSON, err := marshalNotifications(profile.Notifications)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO user_profiles (
			id, email, username, account_tier, scan_usage, push_token,
			notification_settings, premium_activated_at, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.Pool().Exec(ctx, query,
		profile.ID,
		profile.Email,
		profile.Username,
		profile.Tier,
		usageJSON,
		profile.PushToken,
		notificationsJSON,
		profile.PremiumActivatedAt,
		profile.Version,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// GetByID retrieves a profile by user ID. The returned profile carries the
// ledger version used for conditional updates.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*models.UserProfile, error) {
	query := `
		SELECT id, email, username, account_tier, scan_usage, push_token,
		       notification_settings, premium_activated_at, version, created_at, updated_at
		FROM user_profiles
		WHERE id = $1
	`

	profile, err := scanProfile(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}

// UpdateScanUsage writes the ledger back conditionally: the write only lands
// if the row still carries expectedVersion, otherwise ErrVersionConflict is
// returned and the caller must redo the read-evaluate-write cycle.
func (r *ProfileRepository) UpdateScanUsage(ctx context.Context, userID string, usage models.UsageLedger, expectedVersion int64) error {
	usageJSON, err := marshalLedger(usage)
	if err != nil {
		return err
	}

	query := `
		UPDATE user_profiles
		SET scan_usage = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.Pool().Exec(ctx, query, userID, expectedVersion, usageJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update scan usage: %w", err)
	}

	if result.RowsAffected() == 0 {
		// The row was just loaded, so a zero-row update means the version
		// moved underneath us rather than the profile disappearing.
		exists, existsErr := r.exists(ctx, userID)
		if existsErr == nil && !exists {
			return ErrProfileNotFound
		}
		return ErrVersionConflict
	}

	return nil
}

// UpdateTier flips a profile's account tier. premiumActivatedAt is recorded
// when upgrading to premium.
func (r *ProfileRepository) UpdateTier(ctx context.Context, userID string, tier types.AccountTier, activatedAt *time.Time) error {
	if !tier.Valid() {
		return &types.ServiceError{
			Code:    "INVALID_TIER",
			Message: fmt.Sprintf("invalid tier: %s (must be 'free' or 'premium')", tier),
		}
	}

	query := `
		UPDATE user_profiles
		SET account_tier = $2, premium_activated_at = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, userID, tier, activatedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrProfileNotFound
	}

	return nil
}

// ListFreeWithPushToken returns free-tier profiles that can receive scan
// availability reminders.
func (r *ProfileRepository) ListFreeWithPushToken(ctx context.Context) ([]*models.UserProfile, error) {
	query := `
		SELECT id, email, username, account_tier, scan_usage, push_token,
		       notification_settings, premium_activated_at, version, created_at, updated_at
		FROM user_profiles
		WHERE account_tier = $1 AND push_token IS NOT NULL
	`

	rows, err := r.db.Pool().Query(ctx, query, types.TierFree)
	if err != nil {
		return nil, fmt.Errorf("failed to list free profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.UserProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}

	return profiles, nil
}

func (r *ProfileRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM user_profiles WHERE id = $1)`

	if err := r.db.Pool().QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check profile existence: %w", err)
	}
	return exists, nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.UserProfile, error) {
	var profile models.UserProfile
	var usageJSON, notificationsJSON []byte

	err := row.Scan(
		&profile.ID,
		&profile.Email,
		&profile.Username,
		&profile.Tier,
		&usageJSON,
		&profile.PushToken,
		&notificationsJSON,
		&profile.PremiumActivatedAt,
		&profile.Version,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// A NULL ledger reads as empty records, materialized on first admission.
	if len(usageJSON) > 0 {
		if err := json.Unmarshal(usageJSON, &profile.ScanUsage); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scan usage: %w", err)
		}
	}
	if len(notificationsJSON) > 0 {
		var settings models.NotificationSettings
		if err := json.Unmarshal(notificationsJSON, &settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification settings: %w", err)
		}
		profile.Notifications = &settings
	}

	return &profile, nil
}

func marshalLedger(usage models.UsageLedger) ([]byte, error) {
	if usage == nil {
		return nil, nil
	}
	data, err := json.Marshal(usage)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan usage: %w", err)
	}
	return data, nil
}

func marshalNotifications(settings *models.NotificationSettings) ([]byte, error) {
	if settings == nil {
		return nil, nil
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification settings: %w", err)
	}
	return data, nil
}
