// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clicloop/internal/auth"
	"github.com/clicloop/internal/config"
	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/models"
	"github.com/clicloop/internal/ratelimit"
	"github.com/clicloop/internal/service"
	"github.com/clicloop/internal/types"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// GenerationServiceInterface defines the AI proxy operations
type GenerationServiceInterface interface {
	Configured() bool
	Generate(ctx context.Context, userID string, req *service.GenerationRequest) (*service.GenerationResult, error)
}

// TermsServiceInterface defines the terms-acceptance operations
type TermsServiceInterface interface {
	Configured() bool
	Accept(ctx context.Context, req *service.AcceptTermsRequest, info service.ClientInfo) (*service.AcceptTermsResult, error)
}

// PaymentServiceInterface defines the payment webhook operations
type PaymentServiceInterface interface {
	Configured() bool
	HandleEvent(ctx context.Context, body []byte) service.WebhookAck
}

// AccountServiceInterface defines the dashboard operations
type AccountServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	EnsureProfile(ctx context.Context, userID, email, name string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.Profile, error)
	CompleteOnboarding(ctx context.Context, userID string, answers models.OnboardingAnswers) (*models.Profile, error)

	SaveContent(ctx context.Context, userID string, h *models.ContentHistory) error
	SavePrompt(ctx context.Context, userID string, h *models.PromptHistory) error
	SaveCampaign(ctx context.Context, userID string, h *models.CampaignAnalysis) error
	SaveChat(ctx context.Context, userID string, h *models.ChatHistory) error
	ListContent(ctx context.Context, userID string, limit int) ([]models.ContentHistory, error)
	ListPrompts(ctx context.Context, userID string, limit int) ([]models.PromptHistory, error)
	ListCampaigns(ctx context.Context, userID string, limit int) ([]models.CampaignAnalysis, error)
	ListChats(ctx context.Context, userID string, limit int) ([]models.ChatHistory, error)

	Billing(ctx context.Context, userID string) (*service.Billing, error)
	Export(ctx context.Context, userID string) (*models.AccountExport, error)
	DeleteAccount(ctx context.Context, userID string) error
}

// Dependencies are the collaborators the handlers call
type Dependencies struct {
	Verifier   auth.TokenVerifier
	Limiter    ratelimit.Limiter
	Generation GenerationServiceInterface
	Terms      TermsServiceInterface
	Payments   PaymentServiceInterface
	Accounts   AccountServiceInterface
	Logger     *logging.Logger

	// Health is pinged by /health when set
	Health HealthChecker
	// LimiterMetrics reports the AI quota counters on /health when set
	LimiterMetrics func() ratelimit.MetricsSnapshot
}

// HealthChecker reports whether a required backend is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the /health body
type HealthResponse struct {
	Status    string                     `json:"status"`
	Service   string                     `json:"service"`
	RateLimit *ratelimit.MetricsSnapshot `json:"rate_limit,omitempty"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// TermsAPIKey is the shared key expected in x-api-key on terms acceptance
	TermsAPIKey       string
	TermsMaxBodyBytes int64

	Environments config.EnvironmentsConfig
}

const (
	maxGenerationBodyBytes = 64 << 10
	maxWebhookBodyBytes    = 1 << 20
	maxDashboardBodyBytes  = 64 << 10

	healthCheckTimeout = 2 * time.Second
)

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	config     *ServerConfig
	deps       Dependencies
	logger     *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(cfg *ServerConfig, deps Dependencies) *Server {
	if cfg.TermsMaxBodyBytes <= 0 {
		cfg.TermsMaxBodyBytes = 10 << 10
	}
	if deps.Logger == nil {
		deps.Logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router: mux.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: deps.Logger,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Middleware order: logging first so panics are logged with the request id
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, apperrors.NewNotFoundError("route", r.URL.Path))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, apperrors.NewMethodNotAllowedError())
	})

	s.setupRoutes()

	s.handler = CORSMiddleware(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	requireUser := auth.RequireUser(s.deps.Verifier, s.rejectUnauthenticated)

	// AI proxy: authentication, then quota, then the handler
	generate := requireUser(s.rateLimit(http.HandlerFunc(s.handleGenerate)))
	s.router.Handle("/api/ai/generate", generate).Methods("POST")
	s.router.Handle("/functions/chat-ai", generate).Methods("POST")

	// Terms and webhook check the method themselves so 405 comes first
	s.router.HandleFunc("/api/terms/accept", s.handleAcceptTerms)
	s.router.HandleFunc("/functions/aceite-termos", s.handleAcceptTerms)
	s.router.HandleFunc("/api/webhooks/payment", s.handlePaymentWebhook)
	s.router.HandleFunc("/functions/webhook-kiwify", s.handlePaymentWebhook)

	// Dashboard endpoints
	dash := s.router.PathPrefix("/api").Subrouter()
	dash.Use(requireUser)

	dash.HandleFunc("/profile", s.handleGetProfile).Methods("GET")
	dash.HandleFunc("/profile", s.handleEnsureProfile).Methods("POST")
	dash.HandleFunc("/profile", s.handleUpdateProfile).Methods("PUT")
	dash.HandleFunc("/profile/onboarding", s.handleCompleteOnboarding).Methods("POST")

	dash.HandleFunc("/history/{kind}", s.handleSaveHistory).Methods("POST")
	dash.HandleFunc("/history/{kind}", s.handleListHistory).Methods("GET")

	dash.HandleFunc("/billing", s.handleBilling).Methods("GET")
	dash.Handle("/account/export", CompressionMiddleware(http.HandlerFunc(s.handleExport))).Methods("GET")
	dash.HandleFunc("/account", s.handleDeleteAccount).Methods("DELETE")
	dash.HandleFunc("/urls", s.handleURLs).Methods("GET")
}

// rateLimit applies the per-user AI quota. It must run after authentication.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.deps.Limiter == nil {
		return next
	}

	return ratelimit.Middleware(ratelimit.MiddlewareConfig{
		Limiter: s.deps.Limiter,
		Key: func(r *http.Request) (string, bool) {
			id := auth.UserIDFromContext(r.Context())
			return id, id != ""
		},
		OnDenied: func(w http.ResponseWriter, r *http.Request, _ *types.RateLimitDecision, retryAfter int) {
			respondError(w, r, apperrors.NewRateLimitError(retryAfter))
		},
		OnError: func(w http.ResponseWriter, r *http.Request, err error) {
			respondError(w, r, apperrors.NewInternalError("Internal server error", err))
		},
	})(next)
}

func (s *Server) rejectUnauthenticated(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrNotConfigured) {
		respondError(w, r, apperrors.NewConfigurationError("AUTH_JWT_SECRET"))
		return
	}

	message := "Invalid or expired session"
	if errors.Is(err, auth.ErrMissingToken) {
		message = "Missing bearer token"
	}
	logging.FromContext(r.Context()).WithError(err).Debug("unauthenticated request rejected")
	respondError(w, r, apperrors.NewUnauthorizedError(message))
}

// handleHealth handles health check requests. A failed database ping answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Service: "clicloop"}
	if s.deps.LimiterMetrics != nil {
		snap := s.deps.LimiterMetrics()
		resp.RateLimit = &snap
	}

	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).WithError(err).Error("health check failed")
			resp.Status = "unhealthy"
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// Handler returns the fully wrapped HTTP handler, for hosts that do not use Start.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
