package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-admission/internal/models"
	"github.com/scan-admission/internal/storage"
	"github.com/scan-admission/internal/types"
)

type fakeAccountStore struct {
	mu       sync.Mutex
	profiles map[string]*models.UserProfile
}

func newFakeAccountStore(profiles ...*models.UserProfile) *fakeAccountStore {
	store := &fakeAccountStore{profiles: make(map[string]*models.UserProfile)}
	for _, p := range profiles {
		store.profiles[p.ID] = p
	}
	return store
}

func (s *fakeAccountStore) GetByID(_ context.Context, id string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[id]
	if !ok {
		return nil, storage.ErrProfileNotFound
	}
	copied := *profile
	return &copied, nil
}

func (s *fakeAccountStore) UpdateTier(_ context.Context, userID string, tier types.AccountTier, activatedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return storage.ErrProfileNotFound
	}
	profile.Tier = tier
	profile.PremiumActivatedAt = activatedAt
	return nil
}

func validPurchase() *PurchaseRequest {
	return &PurchaseRequest{
		PurchaseToken: "token-abc",
		ProductID:     "premium_monthly",
		Platform:      "android",
	}
}

func TestUpgradeToPremium_Success(t *testing.T) {
	store := newFakeAccountStore(freeProfile("user-1"))
	verifier := NewStaticPurchaseVerifier([]string{"premium_monthly"})
	svc := NewAccountService(store, verifier)

	profile, err := svc.UpgradeToPremium(context.Background(), "user-1", validPurchase())

	require.NoError(t, err)
	assert.Equal(t, types.TierPremium, profile.Tier)
	require.NotNil(t, profile.PremiumActivatedAt)

	persisted := store.profiles["user-1"]
	assert.Equal(t, types.TierPremium, persisted.Tier)
	require.NotNil(t, persisted.PremiumActivatedAt)
}

func TestUpgradeToPremium_LedgerUntouched(t *testing.T) {
	now := time.Now().UTC()
	granted := now.Add(-time.Hour)

	profile := freeProfile("user-1")
	profile.ScanUsage = models.UsageLedger{
		types.ScanHealth: {LastScanAt: &granted, GrantedAt: []time.Time{granted}},
	}
	store := newFakeAccountStore(profile)
	svc := NewAccountService(store, NewStaticPurchaseVerifier([]string{"premium_monthly"}))

	_, err := svc.UpgradeToPremium(context.Background(), "user-1", validPurchase())

	require.NoError(t, err)
	record := store.profiles["user-1"].ScanUsage.Record(types.ScanHealth)
	require.Len(t, record.GrantedAt, 1)
	assert.True(t, record.GrantedAt[0].Equal(granted))
}

func TestUpgradeToPremium_MissingParameters(t *testing.T) {
	store := newFakeAccountStore(freeProfile("user-1"))
	svc := NewAccountService(store, NewStaticPurchaseVerifier([]string{"premium_monthly"}))

	tests := []struct {
		name string
		req  *PurchaseRequest
	}{
		{name: "nil request", req: nil},
		{name: "missing token", req: &PurchaseRequest{ProductID: "premium_monthly", Platform: "android"}},
		{name: "missing product", req: &PurchaseRequest{PurchaseToken: "token", Platform: "ios"}},
		{name: "missing platform", req: &PurchaseRequest{PurchaseToken: "token", ProductID: "premium_monthly"}},
		{name: "unknown platform", req: &PurchaseRequest{PurchaseToken: "token", ProductID: "premium_monthly", Platform: "web"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpgradeToPremium(context.Background(), "user-1", tt.req)

			var svcErr *types.ServiceError
			require.ErrorAs(t, err, &svcErr)
			assert.Equal(t, "INVALID_PURCHASE", svcErr.Code)
			assert.Equal(t, types.TierFree, store.profiles["user-1"].Tier)
		})
	}
}

func TestUpgradeToPremium_RejectedPurchase(t *testing.T) {
	store := newFakeAccountStore(freeProfile("user-1"))
	svc := NewAccountService(store, NewStaticPurchaseVerifier([]string{"premium_monthly"}))

	req := validPurchase()
	req.ProductID = "unknown_product"
	_, err := svc.UpgradeToPremium(context.Background(), "user-1", req)

	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "PURCHASE_REJECTED", svcErr.Code)
	assert.Equal(t, types.TierFree, store.profiles["user-1"].Tier)
}

func TestUpgradeToPremium_ProfileNotFound(t *testing.T) {
	svc := NewAccountService(newFakeAccountStore(), NewStaticPurchaseVerifier([]string{"premium_monthly"}))

	_, err := svc.UpgradeToPremium(context.Background(), "ghost", validPurchase())

	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "PROFILE_NOT_FOUND", svcErr.Code)
}
