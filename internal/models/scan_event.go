package models

import (
	"time"

	"github.com/scan-admission/internal/types"
)

// ScanEvent is an append-only record of one admission decision, written to
// the analytics store. Events are best-effort and never block a request.
type ScanEvent struct {
	ID              string            `json:"id"`
	UserID          string            `json:"userId"`
	ScanType        types.ScanType    `json:"scanType"`
	Tier            types.AccountTier `json:"tier"`
	Allowed         bool              `json:"allowed"`
	CurrentCount    int               `json:"currentCount"`
	Limit           int               `json:"limit"`
	NextAvailableAt *time.Time        `json:"nextAvailableAt,omitempty"`
	DecidedAt       time.Time         `json:"decidedAt"`
	LatencyMs       int64             `json:"latencyMs"`
}
