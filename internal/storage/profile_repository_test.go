package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scan-admission/internal/config"
	"github.com/scan-admission/internal/models"
	"github.com/scan-admission/internal/types"
)

// setupTestDB connects to a local Postgres, skipping when unavailable.
func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "scan_admission_test",
		User:           "scanadmission",
		Password:       "",
		MaxConnections: 5,
	}

	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	return db
}

func newTestProfile() *models.UserProfile {
	id := uuid.New().String()
	return &models.UserProfile{
		ID:       id,
		Email:    id + "@example.test",
		Username: "test-user",
		Tier:     types.TierFree,
	}
}

func TestProfileRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db)
	ctx := testContext(t)

	profile := newTestProfile()
	if err := repo.Create(ctx, profile); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	loaded, err := repo.GetByID(ctx, profile.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if loaded.Tier != types.TierFree {
		t.Errorf("Tier = %s, want free", loaded.Tier)
	}
	if loaded.Version != 0 {
		t.Errorf("Version = %d, want 0", loaded.Version)
	}
	if loaded.ScanUsage != nil {
		t.Errorf("ScanUsage = %v, want nil ledger before first admission", loaded.ScanUsage)
	}
}

func TestProfileRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db)
	ctx := testContext(t)

	_, err := repo.GetByID(ctx, uuid.New().String())
	if !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("GetByID() error = %v, want ErrProfileNotFound", err)
	}
}

func TestProfileRepository_UpdateScanUsage_VersionGuard(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db)
	ctx := testContext(t)

	profile := newTestProfile()
	if err := repo.Create(ctx, profile); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	now := time.Now().UTC()
	ledger := models.UsageLedger{}.WithRecord(types.ScanNutrition, models.UsageRecord{
		LastScanAt: &now,
		GrantedAt:  []time.Time{now},
	})

	// First conditional write at version 0 lands and bumps the version.
	if err := repo.UpdateScanUsage(ctx, profile.ID, ledger, 0); err != nil {
		t.Fatalf("UpdateScanUsage() error = %v", err)
	}

	loaded, err := repo.GetByID(ctx, profile.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if loaded.Version != 1 {
		t.Errorf("Version = %d, want 1 after conditional write", loaded.Version)
	}
	rec := loaded.ScanUsage.Record(types.ScanNutrition)
	if len(rec.GrantedAt) != 1 {
		t.Errorf("GrantedAt has %d entries, want 1", len(rec.GrantedAt))
	}

	// A second write against the stale version must be rejected.
	err = repo.UpdateScanUsage(ctx, profile.ID, ledger, 0)
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("UpdateScanUsage() with stale version error = %v, want ErrVersionConflict", err)
	}
}

func TestProfileRepository_UpdateScanUsage_MissingProfile(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db)
	ctx := testContext(t)

	err := repo.UpdateScanUsage(ctx, uuid.New().String(), models.UsageLedger{}, 0)
	if !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("UpdateScanUsage() error = %v, want ErrProfileNotFound", err)
	}
}

func TestProfileRepository_UpdateTier(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db)
	ctx := testContext(t)

	profile := newTestProfile()
	if err := repo.Create(ctx, profile); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	activatedAt := time.Now().UTC()
	if err := repo.UpdateTier(ctx, profile.ID, types.TierPremium, &activatedAt); err != nil {
		t.Fatalf("UpdateTier() error = %v", err)
	}

	loaded, err := repo.GetByID(ctx, profile.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if loaded.Tier != types.TierPremium {
		t.Errorf("Tier = %s, want premium", loaded.Tier)
	}
	if loaded.PremiumActivatedAt == nil {
		t.Error("PremiumActivatedAt not recorded")
	}
}
