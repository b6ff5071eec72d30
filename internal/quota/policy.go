// Package quota implements the scan quota policy table and the eligibility
// evaluator used by the admission endpoint.
package quota

import (
	"fmt"
	"time"

	"github.com/scan-admission/internal/types"
)

// Policy is one immutable row of the quota table: at most MaxCount admitted
// scans inside a rolling window of Window length.
type Policy struct {
	Tier     types.AccountTier
	ScanType types.ScanType
	MaxCount int
	Window   time.Duration
}

// Quota table. The durations are part of the client contract and must not
// change without a coordinated client release.
var policies = map[types.AccountTier]map[types.ScanType]Policy{
	types.TierFree: {
		types.ScanHealth:    {Tier: types.TierFree, ScanType: types.ScanHealth, MaxCount: 1, Window: 7 * 24 * time.Hour},
		types.ScanBody:      {Tier: types.TierFree, ScanType: types.ScanBody, MaxCount: 1, Window: 30 * 24 * time.Hour},
		types.ScanNutrition: {Tier: types.TierFree, ScanType: types.ScanNutrition, MaxCount: 1, Window: 3 * 24 * time.Hour},
	},
	types.TierPremium: {
		types.ScanHealth:    {Tier: types.TierPremium, ScanType: types.ScanHealth, MaxCount: 3, Window: 24 * time.Hour},
		types.ScanBody:      {Tier: types.TierPremium, ScanType: types.ScanBody, MaxCount: 3, Window: 24 * time.Hour},
		types.ScanNutrition: {Tier: types.TierPremium, ScanType: types.ScanNutrition, MaxCount: 3, Window: 24 * time.Hour},
	},
}

// PolicyFor returns the quota policy for a tier and scan type. Both arguments
// must already be validated; an unknown combination is a configuration defect.
func PolicyFor(tier types.AccountTier, scanType types.ScanType) (Policy, error) {
	byType, ok := policies[tier]
	if !ok {
		return Policy{}, fmt.Errorf("no quota policy for tier %q", tier)
	}
	policy, ok := byType[scanType]
	if !ok {
		return Policy{}, fmt.Errorf("no quota policy for tier %q scan type %q", tier, scanType)
	}
	return policy, nil
}

// ValidateTable verifies every (tier, scan type) combination resolves to a
// well-formed policy. Called once at startup; a failure is fatal.
func ValidateTable() error {
	for _, tier := range []types.AccountTier{types.TierFree, types.TierPremium} {
		for _, scanType := range types.ScanTypes {
			policy, err := PolicyFor(tier, scanType)
			if err != nil {
				return err
			}
			if policy.MaxCount < 1 {
				return fmt.Errorf("quota policy %s/%s has max count %d, must be >= 1", tier, scanType, policy.MaxCount)
			}
			if policy.Window <= 0 {
				return fmt.Errorf("quota policy %s/%s has non-positive window %v", tier, scanType, policy.Window)
			}
		}
	}
	return nil
}
