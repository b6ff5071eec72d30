// Package models provides data models for the scan admission service.
package models

import (
	"time"

	"github.com/scan-admission/internal/types"
)

// UserProfile represents a user's profile row, including the scan usage
// ledger stored as a JSON column.
type UserProfile struct {
	ID                 string                `json:"id" db:"id"`
	Email              string                `json:"email" db:"email"`
	Username           string                `json:"username" db:"username"`
	Tier               types.AccountTier     `json:"accountTier" db:"account_tier"`
	ScanUsage          UsageLedger           `json:"scanUsage,omitempty" db:"scan_usage"`
	PushToken          *string               `json:"pushToken,omitempty" db:"push_token"`
	Notifications      *NotificationSettings `json:"notificationSettings,omitempty" db:"notification_settings"`
	PremiumActivatedAt *time.Time            `json:"premiumActivatedAt,omitempty" db:"premium_activated_at"`
	Version            int64                 `json:"-" db:"version"`
	CreatedAt          time.Time             `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time             `json:"updatedAt" db:"updated_at"`
}

// NotificationSettings represents the user's notification preferences
type NotificationSettings struct {
	Reminders    bool `json:"reminders"`
	Achievements bool `json:"achievements"`
	NewContent   bool `json:"newContent"`
}

// UsageRecord tracks admitted scans of a single scan type.
//
// GrantedAt holds only timestamps that were inside the policy window at the
// time they were recorded; stale entries are pruned lazily on evaluation.
type UsageRecord struct {
	LastScanAt *time.Time  `json:"last_scan_date"`
	GrantedAt  []time.Time `json:"scan_timestamps"`
}

// UsageLedger maps each scan type to its usage record. A nil ledger is
// valid and reads as empty records; it is materialized on first write.
type UsageLedger map[types.ScanType]UsageRecord

// Record returns the usage record for a scan type, or an empty record if
// none has been written yet.
func (l UsageLedger) Record(scanType types.ScanType) UsageRecord {
	if l == nil {
		return UsageRecord{}
	}
	return l[scanType]
}

// WithRecord returns a copy of the ledger with the record for scanType
// replaced. The receiver is not modified, so concurrent readers of the old
// ledger stay consistent.
func (l UsageLedger) WithRecord(scanType types.ScanType, record UsageRecord) UsageLedger {
	updated := make(UsageLedger, len(l)+1)
	for k, v := range l {
		updated[k] = v
	}
	updated[scanType] = record
	return updated
}
