package quota

import (
	"time"

	"github.com/scan-admission/internal/models"
)

// Decision is the outcome of one eligibility evaluation. It is returned to
// the caller and never persisted.
type Decision struct {
	Allowed         bool
	CurrentCount    int
	Limit           int
	NextAvailableAt *time.Time
	Message         string
}

// Evaluate decides whether a scan may be admitted under the given policy.
//
// It is a pure function: the input record is never mutated. On admission the
// returned record carries the appended grant, truncated to the most recent
// MaxCount entries; on denial the returned record is the input unchanged.
//
// The rolling window is measured backward from now. A grant exactly
// Window old sits on the cutoff and is treated as expired: only timestamps
// strictly newer than now-Window count toward the limit.
//
// The caller supplies now from a server-side clock; the evaluator trusts it
// to be monotonically non-decreasing across calls for a given user.
func Evaluate(policy Policy, record models.UsageRecord, now time.Time) (Decision, models.UsageRecord) {
	cutoff := now.Add(-policy.Window)

	valid := validGrants(record.GrantedAt, cutoff)

	if len(valid) >= policy.MaxCount {
		next := oldest(valid).Add(policy.Window)
		return Decision{
			Allowed:         false,
			CurrentCount:    len(valid),
			Limit:           policy.MaxCount,
			NextAvailableAt: &next,
			Message:         DenialMessage(policy.Tier, policy.ScanType),
		}, record
	}

	granted := append(valid, now)
	if len(granted) > policy.MaxCount {
		granted = granted[len(granted)-policy.MaxCount:]
	}

	updated := models.UsageRecord{
		LastScanAt: &now,
		GrantedAt:  granted,
	}

	return Decision{
		Allowed:      true,
		CurrentCount: len(granted),
		Limit:        policy.MaxCount,
		Message:      AllowedMessage,
	}, updated
}

// Peek reports the current standing against the policy without consuming
// quota. Allowed indicates whether an admission attempt at now would
// succeed; NextAvailableAt is set only when it would not.
func Peek(policy Policy, record models.UsageRecord, now time.Time) Decision {
	cutoff := now.Add(-policy.Window)

	valid := validGrants(record.GrantedAt, cutoff)

	decision := Decision{
		Allowed:      len(valid) < policy.MaxCount,
		CurrentCount: len(valid),
		Limit:        policy.MaxCount,
	}
	if !decision.Allowed {
		next := oldest(valid).Add(policy.Window)
		decision.NextAvailableAt = &next
		decision.Message = DenialMessage(policy.Tier, policy.ScanType)
	}
	return decision
}

// validGrants returns the grants strictly newer than the cutoff, in a fresh
// slice so the stored record is never aliased.
func validGrants(grants []time.Time, cutoff time.Time) []time.Time {
	valid := make([]time.Time, 0, len(grants))
	for _, ts := range grants {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	return valid
}

// oldest returns the earliest timestamp. The slice must be non-empty; grants
// are appended in admission order but sorting is not assumed.
func oldest(grants []time.Time) time.Time {
	min := grants[0]
	for _, ts := range grants[1:] {
		if ts.Before(min) {
			min = ts
		}
	}
	return min
}
