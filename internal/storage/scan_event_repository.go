package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scan-admission/internal/models"
)

// ScanEventRepository appends admission decisions to the ClickHouse
// analytics store.
type ScanEventRepository struct {
	db *ClickHouseDB
}

// NewScanEventRepository creates a new scan event repository
func NewScanEventRepository(db *ClickHouseDB) *ScanEventRepository {
	return &ScanEventRepository{db: db}
}

// Record inserts one admission decision. Callers treat failures as
// best-effort: an audit miss never fails the request that produced it.
func (r *ScanEventRepository) Record(ctx context.Context, event *models.ScanEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.DecidedAt.IsZero() {
		event.DecidedAt = time.Now().UTC()
	}

	allowed := uint8(0)
	if event.Allowed {
		allowed = 1
	}

	query := `
		INSERT INTO scan_events (
			id, user_id, scan_type, tier, allowed,
			current_count, limit_count, next_available_at, decided_at, latency_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	err := r.db.Conn().Exec(ctx, query,
		event.ID,
		event.UserID,
		string(event.ScanType),
		string(event.Tier),
		allowed,
		uint32(event.CurrentCount), // #nosec G115 - counts are bounded by the policy table
		uint32(event.Limit),        // #nosec G115
		event.NextAvailableAt,
		event.DecidedAt,
		event.LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("failed to record scan event: %w", err)
	}
	return nil
}

// CountByUser returns the number of recorded decisions for a user, used by
// analytics consumers and integration tests.
func (r *ScanEventRepository) CountByUser(ctx context.Context, userID string) (uint64, error) {
	var count uint64
	query := `SELECT count() FROM scan_events WHERE user_id = $1`

	if err := r.db.Conn().QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scan events: %w", err)
	}
	return count, nil
}
