package quota

import "github.com/scan-admission/internal/types"

// User-facing messages, returned verbatim to the mobile client. The client
// renders them above a countdown, so the wording is part of the contract.
const AllowedMessage = "Scan autorisé"

var denialMessages = map[types.AccountTier]map[types.ScanType]string{
	types.TierFree: {
		types.ScanHealth:    "Limite hebdomadaire atteinte. Prochain scan disponible dans",
		types.ScanBody:      "Limite mensuelle atteinte. Prochain scan disponible dans",
		types.ScanNutrition: "Limite atteinte. Prochain scan disponible dans",
	},
	types.TierPremium: {
		types.ScanHealth:    "Limite quotidienne atteinte (3 scans). Prochain scan disponible dans",
		types.ScanBody:      "Limite quotidienne atteinte (3 scans). Prochain scan disponible dans",
		types.ScanNutrition: "Limite quotidienne atteinte (3 scans). Prochain scan disponible dans",
	},
}

// DenialMessage returns the limit-reached message for a tier and scan type.
func DenialMessage(tier types.AccountTier, scanType types.ScanType) string {
	if byType, ok := denialMessages[tier]; ok {
		if msg, ok := byType[scanType]; ok {
			return msg
		}
	}
	return "Limite atteinte. Prochain scan disponible dans"
}
