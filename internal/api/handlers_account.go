package api

import (
	"net/http"

	"github.com/scan-admission/internal/auth"
	"github.com/scan-admission/internal/service"
)

// UpgradeResponse is the wire shape for a successful tier upgrade.
type UpgradeResponse struct {
	Success            bool   `json:"success"`
	AccountTier        string `json:"account_tier"`
	PremiumActivatedAt int64  `json:"premium_activated_at"`
}

// handleUpgradeToPremium handles POST /upgrade-to-premium - verify the
// purchase proof and flip the account tier.
func (s *Server) handleUpgradeToPremium(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing authorization header")
		return
	}

	var req service.PurchaseRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	profile, err := s.accountService.UpgradeToPremium(r.Context(), userID, &req)
	if err != nil {
		status, message := mapServiceError(err)
		respondError(w, status, message)
		return
	}

	respondJSON(w, http.StatusOK, UpgradeResponse{
		Success:            true,
		AccountTier:        string(profile.Tier),
		PremiumActivatedAt: profile.PremiumActivatedAt.UnixMilli(),
	})
}
