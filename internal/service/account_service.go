package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scan-admission/internal/logging"
	"github.com/scan-admission/internal/models"
	"github.com/scan-admission/internal/storage"
	"github.com/scan-admission/internal/types"
)

// AccountStore is the persistence port for tier changes.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*models.UserProfile, error)
	UpdateTier(ctx context.Context, userID string, tier types.AccountTier, activatedAt *time.Time) error
}

// PurchaseVerifier checks a store purchase before a premium upgrade is
// applied. Receipt validation against the app stores happens outside this
// service; implementations here only gate on the verifier's verdict.
type PurchaseVerifier interface {
	Verify(ctx context.Context, req *PurchaseRequest) (orderID string, err error)
}

// PurchaseRequest carries the client-side purchase proof.
type PurchaseRequest struct {
	PurchaseToken string `json:"purchaseToken"`
	ProductID     string `json:"productId"`
	Platform      string `json:"platform"`
}

// ErrPurchaseRejected indicates the purchase proof did not verify.
var ErrPurchaseRejected = errors.New("purchase verification failed")

// StaticPurchaseVerifier accepts purchases for an allow-listed set of
// product IDs. Used where the real store-side verifier is not wired in.
type StaticPurchaseVerifier struct {
	products map[string]bool
}

// NewStaticPurchaseVerifier creates a verifier accepting the given product IDs.
func NewStaticPurchaseVerifier(productIDs []string) *StaticPurchaseVerifier {
	products := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		products[id] = true
	}
	return &StaticPurchaseVerifier{products: products}
}

// Verify accepts the purchase when the product is allow-listed and a token
// is present.
func (v *StaticPurchaseVerifier) Verify(_ context.Context, req *PurchaseRequest) (string, error) {
	if req.PurchaseToken == "" || !v.products[req.ProductID] {
		return "", ErrPurchaseRejected
	}
	return "static-" + req.ProductID, nil
}

// AccountService applies tier changes after purchase verification.
type AccountService struct {
	accounts AccountStore
	verifier PurchaseVerifier
	now      Clock
}

// NewAccountService creates a new account service.
func NewAccountService(accounts AccountStore, verifier PurchaseVerifier) *AccountService {
	return &AccountService{
		accounts: accounts,
		verifier: verifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// UpgradeToPremium verifies the purchase and flips the account tier. The
// usage ledger is left untouched; the premium policy simply applies to it
// on the next evaluation.
func (s *AccountService) UpgradeToPremium(ctx context.Context, userID string, req *PurchaseRequest) (*models.UserProfile, error) {
	if req == nil || req.PurchaseToken == "" || req.ProductID == "" || req.Platform == "" {
		return nil, &types.ServiceError{
			Code:    "INVALID_PURCHASE",
			Message: "missing required purchase parameters",
		}
	}
	if req.Platform != "android" && req.Platform != "ios" {
		return nil, &types.ServiceError{
			Code:    "INVALID_PURCHASE",
			Message: fmt.Sprintf("invalid platform: %s", req.Platform),
		}
	}

	profile, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrProfileNotFound) {
			return nil, &types.ServiceError{
				Code:    "PROFILE_NOT_FOUND",
				Message: "user profile not found",
			}
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	orderID, err := s.verifier.Verify(ctx, req)
	if err != nil {
		return nil, &types.ServiceError{
			Code:    "PURCHASE_REJECTED",
			Message: "purchase could not be verified",
		}
	}

	activatedAt := s.now()
	if err := s.accounts.UpdateTier(ctx, userID, types.TierPremium, &activatedAt); err != nil {
		return nil, fmt.Errorf("failed to apply premium tier: %w", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"userId":  userID,
		"orderId": orderID,
		"product": req.ProductID,
	}).Info("Account upgraded to premium")

	profile.Tier = types.TierPremium
	profile.PremiumActivatedAt = &activatedAt
	return profile, nil
}
