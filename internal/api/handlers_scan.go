package api

import (
	"net/http"

	"github.com/scan-admission/internal/auth"
	"github.com/scan-admission/internal/quota"
	"github.com/scan-admission/internal/types"
)

// EligibilityResponse is the wire shape for an admission decision. The
// fields mirror what the mobile client renders: the message string, the
// "X of Y used" counters, and the countdown target on denial.
type EligibilityResponse struct {
	Success       bool   `json:"success"`
	Allowed       bool   `json:"allowed"`
	Message       string `json:"message"`
	CurrentCount  int    `json:"current_count"`
	Limit         int    `json:"limit"`
	NextAvailable *int64 `json:"next_available_date,omitempty"`
}

func eligibilityResponse(decision *quota.Decision) EligibilityResponse {
	resp := EligibilityResponse{
		Success:      true,
		Allowed:      decision.Allowed,
		Message:      decision.Message,
		CurrentCount: decision.CurrentCount,
		Limit:        decision.Limit,
	}
	if decision.NextAvailableAt != nil {
		ms := decision.NextAvailableAt.UnixMilli()
		resp.NextAvailable = &ms
	}
	return resp
}

// handleScanEligibility handles POST /scan-eligibility - evaluate one scan
// attempt and record it when admitted. Returns 200 on both allow and deny;
// clients read the allowed flag, not the status code.
func (s *Server) handleScanEligibility(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing authorization header")
		return
	}

	var req struct {
		ScanType types.ScanType `json:"scanType"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	decision, err := s.admissionService.CheckAndRecord(r.Context(), userID, req.ScanType)
	if err != nil {
		status, message := mapServiceError(err)
		respondError(w, status, message)
		return
	}

	respondJSON(w, http.StatusOK, eligibilityResponse(decision))
}

// UsageResponse is the wire shape for the usage summary.
type UsageResponse struct {
	Success bool                           `json:"success"`
	Usage   map[types.ScanType]UsageStatus `json:"usage"`
}

// UsageStatus reports one scan type's standing without consuming quota.
type UsageStatus struct {
	Available     bool   `json:"available"`
	CurrentCount  int    `json:"current_count"`
	Limit         int    `json:"limit"`
	NextAvailable *int64 `json:"next_available_date,omitempty"`
}

// handleScanUsage handles GET /scan-usage - report per-type quota standing.
// Pure read; backs the client's usage indicators and countdown timers.
func (s *Server) handleScanUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing authorization header")
		return
	}

	usage, err := s.admissionService.Usage(r.Context(), userID)
	if err != nil {
		status, message := mapServiceError(err)
		respondError(w, status, message)
		return
	}

	statuses := make(map[types.ScanType]UsageStatus, len(usage))
	for scanType, decision := range usage {
		status := UsageStatus{
			Available:    decision.Allowed,
			CurrentCount: decision.CurrentCount,
			Limit:        decision.Limit,
		}
		if decision.NextAvailableAt != nil {
			ms := decision.NextAvailableAt.UnixMilli()
			status.NextAvailable = &ms
		}
		statuses[scanType] = status
	}

	respondJSON(w, http.StatusOK, UsageResponse{Success: true, Usage: statuses})
}
