// Package service contains the business logic layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/scan-admission/internal/logging"
	"github.com/scan-admission/internal/metrics"
	"github.com/scan-admission/internal/models"
	"github.com/scan-admission/internal/quota"
	"github.com/scan-admission/internal/retry"
	"github.com/scan-admission/internal/storage"
	"github.com/scan-admission/internal/types"
)

// ProfileStore is the persistence port the admission service depends on.
// storage.ProfileRepository is the production implementation; tests inject
// an in-memory fake.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*models.UserProfile, error)
	// UpdateScanUsage must be conditional on expectedVersion and return
	// storage.ErrVersionConflict when a concurrent writer got there first.
	UpdateScanUsage(ctx context.Context, userID string, usage models.UsageLedger, expectedVersion int64) error
}

// DecisionRecorder receives one event per admission decision for analytics.
type DecisionRecorder interface {
	Record(ctx context.Context, event *models.ScanEvent) error
}

// Clock supplies the evaluation time. The default is the server's UTC
// clock; tests substitute a fixed one.
type Clock func() time.Time

// AdmissionService evaluates scan eligibility and records admitted scans in
// the user's usage ledger.
type AdmissionService struct {
	profiles    ProfileStore
	recorder    DecisionRecorder
	retryConfig *retry.Config
	now         Clock
}

// AdmissionServiceConfig holds construction parameters for AdmissionService.
type AdmissionServiceConfig struct {
	Profiles ProfileStore
	// Recorder is optional; a nil recorder disables audit events.
	Recorder DecisionRecorder
	// MaxWriteAttempts bounds the conditional-write retry cycle. Default: 3.
	MaxWriteAttempts int
	// RetryDelay is the initial backoff between write attempts. Default: 25ms.
	RetryDelay time.Duration
	// Now overrides the clock, for tests.
	Now Clock
}

// NewAdmissionService creates a new admission service.
func NewAdmissionService(cfg *AdmissionServiceConfig) (*AdmissionService, error) {
	if cfg == nil || cfg.Profiles == nil {
		return nil, errors.New("profile store is required")
	}

	retryConfig := retry.DefaultConfig()
	if cfg.MaxWriteAttempts > 0 {
		retryConfig.MaxAttempts = cfg.MaxWriteAttempts
	}
	if cfg.RetryDelay > 0 {
		retryConfig.InitialDelay = cfg.RetryDelay
	}
	retryConfig.IsRetryable = func(err error) bool {
		return errors.Is(err, storage.ErrVersionConflict)
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &AdmissionService{
		profiles:    cfg.Profiles,
		recorder:    cfg.Recorder,
		retryConfig: retryConfig,
		now:         now,
	}, nil
}

// CheckAndRecord runs the full admission cycle for one scan attempt: load
// the profile, evaluate the quota, and persist the updated ledger when the
// scan is admitted.
//
// The ledger write is conditional on the version read at load time. When a
// concurrent request wins the write race the whole cycle is retried against
// the fresh ledger, so two racing requests for the last slot resolve to one
// admission and one denial. Denials never write.
func (s *AdmissionService) CheckAndRecord(ctx context.Context, userID string, scanType types.ScanType) (*quota.Decision, error) {
	if !scanType.Valid() {
		return nil, &types.ServiceError{
			Code:    "INVALID_SCAN_TYPE",
			Message: fmt.Sprintf("invalid scan type: %s (must be 'body', 'health' or 'nutrition')", scanType),
			Details: map[string]interface{}{"scanType": scanType},
		}
	}

	started := s.now()

	var decision quota.Decision
	var tier types.AccountTier

	err := retry.Do(ctx, s.retryConfig, func(ctx context.Context, attempt int) error {
		profile, err := s.profiles.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, storage.ErrProfileNotFound) {
				return &types.ServiceError{
					Code:    "PROFILE_NOT_FOUND",
					Message: "user profile not found",
				}
			}
			return fmt.Errorf("failed to load profile: %w", err)
		}
		tier = profile.Tier

		// Policy is re-resolved from the freshly loaded tier on every
		// attempt, so a mid-window upgrade applies immediately.
		policy, err := quota.PolicyFor(profile.Tier, scanType)
		if err != nil {
			return fmt.Errorf("quota policy lookup: %w", err)
		}

		var updated models.UsageRecord
		decision, updated = quota.Evaluate(policy, profile.ScanUsage.Record(scanType), s.now())

		if !decision.Allowed {
			return nil
		}

		// Fail closed: if this write does not land, the caller gets an
		// error, never an unpersisted allow.
		writeErr := s.profiles.UpdateScanUsage(ctx, userID, profile.ScanUsage.WithRecord(scanType, updated), profile.Version)
		if errors.Is(writeErr, storage.ErrVersionConflict) {
			metrics.LedgerWriteConflictsTotal.Inc()
		}
		return writeErr
	})
	if err != nil {
		var svcErr *types.ServiceError
		if errors.As(err, &svcErr) {
			return nil, svcErr
		}
		if errors.Is(err, storage.ErrVersionConflict) {
			return nil, &types.ServiceError{
				Code:    "PERSISTENCE_FAILURE",
				Message: "could not record scan, please retry",
			}
		}
		return nil, &types.ServiceError{
			Code:    "PERSISTENCE_FAILURE",
			Message: "failed to evaluate scan eligibility",
		}
	}

	metrics.AdmissionsTotal.WithLabelValues(string(scanType), string(tier), strconv.FormatBool(decision.Allowed)).Inc()
	s.audit(ctx, userID, scanType, tier, decision, started)

	return &decision, nil
}

// Usage reports the current standing for every scan type without consuming
// quota. Backs the client's usage indicators and countdown timers.
func (s *AdmissionService) Usage(ctx context.Context, userID string) (map[types.ScanType]quota.Decision, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrProfileNotFound) {
			return nil, &types.ServiceError{
				Code:    "PROFILE_NOT_FOUND",
				Message: "user profile not found",
			}
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	now := s.now()
	usage := make(map[types.ScanType]quota.Decision, len(types.ScanTypes))
	for _, scanType := range types.ScanTypes {
		policy, err := quota.PolicyFor(profile.Tier, scanType)
		if err != nil {
			return nil, fmt.Errorf("quota policy lookup: %w", err)
		}
		usage[scanType] = quota.Peek(policy, profile.ScanUsage.Record(scanType), now)
	}

	return usage, nil
}

// audit emits the decision to the analytics store. Best-effort only.
func (s *AdmissionService) audit(ctx context.Context, userID string, scanType types.ScanType, tier types.AccountTier, decision quota.Decision, started time.Time) {
	if s.recorder == nil {
		return
	}

	event := &models.ScanEvent{
		UserID:          userID,
		ScanType:        scanType,
		Tier:            tier,
		Allowed:         decision.Allowed,
		CurrentCount:    decision.CurrentCount,
		Limit:           decision.Limit,
		NextAvailableAt: decision.NextAvailableAt,
		DecidedAt:       s.now(),
		LatencyMs:       s.now().Sub(started).Milliseconds(),
	}

	if err := s.recorder.Record(ctx, event); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		logging.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"userId":   userID,
			"scanType": scanType,
		}).Warn("Failed to record scan event")
	}
}
