// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scan-admission/internal/auth"
	"github.com/scan-admission/internal/logging"
	"github.com/scan-admission/internal/models"
	"github.com/scan-admission/internal/quota"
	"github.com/scan-admission/internal/service"
	"github.com/scan-admission/internal/types"
)

// Service interfaces for dependency injection and testing

// AdmissionServiceInterface defines the interface for scan admission operations
type AdmissionServiceInterface interface {
	CheckAndRecord(ctx context.Context, userID string, scanType types.ScanType) (*quota.Decision, error)
	Usage(ctx context.Context, userID string) (map[types.ScanType]quota.Decision, error)
}

// AccountServiceInterface defines the interface for account tier operations
type AccountServiceInterface interface {
	UpgradeToPremium(ctx context.Context, userID string, req *service.PurchaseRequest) (*models.UserProfile, error)
}

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	httpServer       *http.Server
	admissionService AdmissionServiceInterface
	accountService   AccountServiceInterface
	verifier         auth.Verifier
	config           *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	admissionService AdmissionServiceInterface,
	accountService AccountServiceInterface,
	verifier auth.Verifier,
) *Server {
	s := &Server{
		router:           mux.NewRouter(),
		admissionService: admissionService,
		accountService:   accountService,
		verifier:         verifier,
		config:           config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	// Unauthenticated endpoints
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Authenticated endpoints: identity resolution before rate limiting so
	// the limiter keys on user ID.
	authed := s.router.NewRoute().Subrouter()
	authed.Use(AuthMiddleware(s.verifier))
	authed.Use(RateLimitMiddleware(rateLimiter))

	authed.HandleFunc("/scan-eligibility", s.handleScanEligibility).Methods("POST")
	authed.HandleFunc("/scan-usage", s.handleScanUsage).Methods("GET")
	authed.HandleFunc("/upgrade-to-premium", s.handleUpgradeToPremium).Methods("POST")

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "scan-admission",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.GetGlobalLogger().Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
