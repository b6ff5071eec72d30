package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scan-admission/internal/auth"
	"github.com/scan-admission/internal/models"
	"github.com/scan-admission/internal/quota"
	"github.com/scan-admission/internal/service"
	"github.com/scan-admission/internal/types"
)

// staticVerifier resolves a fixed token set without Redis.
type staticVerifier struct {
	sessions map[string]string
}

func (v *staticVerifier) Verify(_ context.Context, token string) (string, error) {
	userID, ok := v.sessions[token]
	if !ok {
		return "", auth.ErrInvalidToken
	}
	return userID, nil
}

// stubAdmissionService returns canned decisions and records calls.
type stubAdmissionService struct {
	decision *quota.Decision
	usage    map[types.ScanType]quota.Decision
	err      error
	calls    int
}

func (s *stubAdmissionService) CheckAndRecord(_ context.Context, _ string, scanType types.ScanType) (*quota.Decision, error) {
	s.calls++
	if !scanType.Valid() {
		return nil, &types.ServiceError{Code: "INVALID_SCAN_TYPE", Message: "invalid scan type: " + string(scanType)}
	}
	return s.decision, s.err
}

func (s *stubAdmissionService) Usage(_ context.Context, _ string) (map[types.ScanType]quota.Decision, error) {
	return s.usage, s.err
}

type stubAccountService struct {
	profile *models.UserProfile
	err     error
}

func (s *stubAccountService) UpgradeToPremium(_ context.Context, _ string, _ *service.PurchaseRequest) (*models.UserProfile, error) {
	return s.profile, s.err
}

func createTestServer(admission AdmissionServiceInterface, account AccountServiceInterface) *Server {
	return NewServer(
		&ServerConfig{
			Host:           "127.0.0.1",
			Port:           "0",
			RateLimitRPS:   100,
			RateLimitBurst: 100,
		},
		admission,
		account,
		&staticVerifier{sessions: map[string]string{"token-1": "user-1"}},
	)
}

func doRequest(server *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func TestScanEligibility_MissingAuth(t *testing.T) {
	admission := &stubAdmissionService{}
	server := createTestServer(admission, &stubAccountService{})

	w := doRequest(server, "POST", "/scan-eligibility", "", map[string]string{"scanType": "health"})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if admission.calls != 0 {
		t.Errorf("Expected no service calls, got %d", admission.calls)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Success {
		t.Error("Expected success=false")
	}
	if resp.Error == "" {
		t.Error("Expected error message")
	}
}

func TestScanEligibility_InvalidToken(t *testing.T) {
	server := createTestServer(&stubAdmissionService{}, &stubAccountService{})

	w := doRequest(server, "POST", "/scan-eligibility", "bogus", map[string]string{"scanType": "health"})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestScanEligibility_InvalidScanType(t *testing.T) {
	admission := &stubAdmissionService{}
	server := createTestServer(admission, &stubAccountService{})

	w := doRequest(server, "POST", "/scan-eligibility", "token-1", map[string]string{"scanType": "muscle"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Success {
		t.Error("Expected success=false")
	}
}

func TestScanEligibility_MalformedBody(t *testing.T) {
	server := createTestServer(&stubAdmissionService{}, &stubAccountService{})

	req := httptest.NewRequest("POST", "/scan-eligibility", bytes.NewReader([]byte("not json")))
	req.Header.Set("Authorization", "Bearer token-1")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestScanEligibility_Allowed(t *testing.T) {
	admission := &stubAdmissionService{
		decision: &quota.Decision{
			Allowed:      true,
			CurrentCount: 1,
			Limit:        3,
			Message:      quota.AllowedMessage,
		},
	}
	server := createTestServer(admission, &stubAccountService{})

	w := doRequest(server, "POST", "/scan-eligibility", "token-1", map[string]string{"scanType": "health"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["success"] != true || resp["allowed"] != true {
		t.Errorf("Expected success and allowed, got %v", resp)
	}
	if resp["message"] != "Scan autorisé" {
		t.Errorf("Unexpected message: %v", resp["message"])
	}
	if resp["current_count"] != float64(1) || resp["limit"] != float64(3) {
		t.Errorf("Unexpected counters: %v", resp)
	}
	if _, present := resp["next_available_date"]; present {
		t.Error("next_available_date must be absent on allow")
	}
}

func TestScanEligibility_Denied(t *testing.T) {
	next := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	admission := &stubAdmissionService{
		decision: &quota.Decision{
			Allowed:         false,
			CurrentCount:    1,
			Limit:           1,
			NextAvailableAt: &next,
			Message:         "Limite hebdomadaire atteinte. Prochain scan disponible dans 7 jours.",
		},
	}
	server := createTestServer(admission, &stubAccountService{})

	w := doRequest(server, "POST", "/scan-eligibility", "token-1", map[string]string{"scanType": "health"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on denial, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["success"] != true || resp["allowed"] != false {
		t.Errorf("Expected success with allowed=false, got %v", resp)
	}
	if resp["next_available_date"] != float64(next.UnixMilli()) {
		t.Errorf("Unexpected next_available_date: %v", resp["next_available_date"])
	}
}

func TestScanEligibility_ServiceFailure(t *testing.T) {
	admission := &stubAdmissionService{
		err: &types.ServiceError{Code: "PERSISTENCE_FAILURE", Message: "could not record scan, please retry"},
	}
	server := createTestServer(admission, &stubAccountService{})

	w := doRequest(server, "POST", "/scan-eligibility", "token-1", map[string]string{"scanType": "health"})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestScanEligibility_ProfileNotFound(t *testing.T) {
	admission := &stubAdmissionService{
		err: &types.ServiceError{Code: "PROFILE_NOT_FOUND", Message: "user profile not found"},
	}
	server := createTestServer(admission, &stubAccountService{})

	w := doRequest(server, "POST", "/scan-eligibility", "token-1", map[string]string{"scanType": "health"})

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestScanUsage(t *testing.T) {
	next := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	admission := &stubAdmissionService{
		usage: map[types.ScanType]quota.Decision{
			types.ScanHealth:    {Allowed: false, CurrentCount: 1, Limit: 1, NextAvailableAt: &next},
			types.ScanBody:      {Allowed: true, CurrentCount: 0, Limit: 1},
			types.ScanNutrition: {Allowed: true, CurrentCount: 0, Limit: 1},
		},
	}
	server := createTestServer(admission, &stubAccountService{})

	w := doRequest(server, "GET", "/scan-usage", "token-1", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp UsageResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Error("Expected success=true")
	}
	if len(resp.Usage) != 3 {
		t.Fatalf("Expected 3 usage entries, got %d", len(resp.Usage))
	}

	health := resp.Usage[types.ScanHealth]
	if health.Available {
		t.Error("Expected health unavailable")
	}
	if health.NextAvailable == nil || *health.NextAvailable != next.UnixMilli() {
		t.Errorf("Unexpected health next_available_date: %v", health.NextAvailable)
	}

	body := resp.Usage[types.ScanBody]
	if !body.Available || body.NextAvailable != nil {
		t.Errorf("Expected body available with no countdown, got %+v", body)
	}
}

func TestUpgradeToPremium(t *testing.T) {
	activatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	account := &stubAccountService{
		profile: &models.UserProfile{
			ID:                 "user-1",
			Tier:               types.TierPremium,
			PremiumActivatedAt: &activatedAt,
		},
	}
	server := createTestServer(&stubAdmissionService{}, account)

	w := doRequest(server, "POST", "/upgrade-to-premium", "token-1", map[string]string{
		"purchaseToken": "token-abc",
		"productId":     "premium_monthly",
		"platform":      "android",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp UpgradeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Success || resp.AccountTier != "premium" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if resp.PremiumActivatedAt != activatedAt.UnixMilli() {
		t.Errorf("Unexpected premium_activated_at: %d", resp.PremiumActivatedAt)
	}
}

func TestUpgradeToPremium_Rejected(t *testing.T) {
	account := &stubAccountService{
		err: &types.ServiceError{Code: "PURCHASE_REJECTED", Message: "purchase could not be verified"},
	}
	server := createTestServer(&stubAdmissionService{}, account)

	w := doRequest(server, "POST", "/upgrade-to-premium", "token-1", map[string]string{
		"purchaseToken": "token-abc",
		"productId":     "unknown",
		"platform":      "android",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHealthEndpoint_NoAuthRequired(t *testing.T) {
	server := createTestServer(&stubAdmissionService{}, &stubAccountService{})

	w := doRequest(server, "GET", "/health", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}
