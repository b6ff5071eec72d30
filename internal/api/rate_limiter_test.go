package api

import (
	"net/http"
	"testing"

	"github.com/scan-admission/internal/quota"
)

func TestRateLimit_EnforcedPerUser(t *testing.T) {
	admission := &stubAdmissionService{
		decision: &quota.Decision{Allowed: true, CurrentCount: 1, Limit: 3, Message: quota.AllowedMessage},
	}
	server := NewServer(
		&ServerConfig{Host: "127.0.0.1", Port: "0", RateLimitRPS: 1, RateLimitBurst: 2},
		admission,
		&stubAccountService{},
		&staticVerifier{sessions: map[string]string{"token-1": "user-1"}},
	)

	codes := make([]int, 3)
	for i := range codes {
		w := doRequest(server, "POST", "/scan-eligibility", "token-1", map[string]string{"scanType": "health"})
		codes[i] = w.Code
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("Expected first two requests to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected third request to be limited, got %v", codes)
	}
}

func TestRateLimiter_SeparateBucketsPerKey(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	if !rl.getLimiter("user-1").Allow() {
		t.Error("Expected first request for user-1 to pass")
	}
	if rl.getLimiter("user-1").Allow() {
		t.Error("Expected second request for user-1 to be limited")
	}
	if !rl.getLimiter("user-2").Allow() {
		t.Error("Expected user-2 to have its own bucket")
	}
}
