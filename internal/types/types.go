// Package types provides common type definitions for the scan admission service.
package types

// ScanType identifies one of the scan categories the mobile client offers.
type ScanType string

const (
	// ScanBody represents a full-body progress scan
	ScanBody ScanType = "body"
	// ScanHealth represents a face/health scan
	ScanHealth ScanType = "health"
	// ScanNutrition represents a meal/nutrition scan
	ScanNutrition ScanType = "nutrition"
)

// ScanTypes lists every recognized scan type.
var ScanTypes = []ScanType{ScanBody, ScanHealth, ScanNutrition}

// Valid reports whether the scan type is one of the recognized values.
func (s ScanType) Valid() bool {
	switch s {
	case ScanBody, ScanHealth, ScanNutrition:
		return true
	default:
		return false
	}
}

// AccountTier represents the subscription level of a user account.
type AccountTier string

const (
	// TierFree represents the free account tier with restrictive scan quotas
	TierFree AccountTier = "free"
	// TierPremium represents the paid account tier with daily scan quotas
	TierPremium AccountTier = "premium"
)

// Valid reports whether the tier is one of the recognized values.
func (t AccountTier) Valid() bool {
	return t == TierFree || t == TierPremium
}

// ServiceError represents a structured error raised by the service layer
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
