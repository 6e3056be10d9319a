package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/psilva81/inferq/pkg/auth"
	"github.com/psilva81/inferq/pkg/logging"
	"github.com/psilva81/inferq/pkg/models"
	"github.com/psilva81/inferq/pkg/ratelimit"
	"github.com/psilva81/inferq/pkg/scheduler"
	"github.com/psilva81/inferq/pkg/telemetry"
)

// Queue is the scheduler surface the API serves
type Queue interface {
	Submit(payload, userID string, priority models.Priority, metadata map[string]string) (string, error)
	Status(id string) (models.RequestSnapshot, error)
	Cancel(id string) bool
	Stats() scheduler.Stats
}

// HostProbe reports cached host readings for the health endpoint
type HostProbe interface {
	Stats() (telemetry.HostStats, error)
}

// Server handles the analysis API
type Server struct {
	queue      Queue
	apiKey     string
	tokens     *auth.TokenManager
	sessionTTL time.Duration
	limiter    *ratelimit.Limiter
	probe      HostProbe
	trace      mux.MiddlewareFunc
	access     *logging.Logger
	tlsConfig  *tls.Config
	startedAt  time.Time
	httpServer *http.Server
}

// Option configures optional server collaborators
type Option func(*Server)

// WithAPIKey enables bearer-key authentication and session issuance
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithSessionTTL overrides the default 24h session token lifetime
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Server) { s.sessionTTL = ttl }
}

// WithRateLimiter enables per-client request limiting
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithHostProbe adds host CPU/memory readings to the health endpoint
func WithHostProbe(p HostProbe) Option {
	return func(s *Server) { s.probe = p }
}

// WithTraceMiddleware inserts a tracing middleware into the chain
func WithTraceMiddleware(mw mux.MiddlewareFunc) Option {
	return func(s *Server) { s.trace = mw }
}

// WithAccessLogger routes access logs through a structured logger instead
// of the process default
func WithAccessLogger(l *logging.Logger) Option {
	return func(s *Server) { s.access = l }
}

// WithTLSConfig serves the API over TLS
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Server) { s.tlsConfig = cfg }
}

// NewServer creates an API server around the given queue
func NewServer(queue Queue, opts ...Option) *Server {
	s := &Server{
		queue:      queue,
		sessionTTL: 24 * time.Hour,
		startedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.apiKey != "" {
		s.tokens = auth.NewTokenManager()
	}
	return s
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/analyses", s.SubmitAnalysis).Methods("POST")
	r.HandleFunc("/api/v1/analyses/{id}", s.GetAnalysis).Methods("GET")
	r.HandleFunc("/api/v1/analyses/{id}", s.CancelAnalysis).Methods("DELETE")
	r.HandleFunc("/api/v1/stats", s.GetStats).Methods("GET")
	r.HandleFunc("/api/v1/sessions", s.CreateSession).Methods("POST")
	r.HandleFunc("/health", s.Health).Methods("GET")
}

// Router builds the full router with the middleware chain applied
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logMiddleware)
	if s.trace != nil {
		r.Use(s.trace)
	}
	if s.limiter != nil {
		r.Use(s.limiter.Middleware(ratelimit.UserKeyFunc))
	}
	if s.apiKey != "" {
		r.Use(s.authMiddleware)
	}
	s.RegisterRoutes(r)
	return r
}

// Start serves the API on addr and blocks until shutdown
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		TLSConfig:    s.tlsConfig,
	}
	if s.tlsConfig != nil {
		return s.httpServer.ListenAndServeTLS("", "")
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// SubmitAnalysis admits a new analysis request into the queue
func (s *Server) SubmitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Payload == "" {
		http.Error(w, "payload is required", http.StatusBadRequest)
		return
	}

	priority, err := models.ParsePriority(req.Priority)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid priority '%s'. Valid values: low, normal, high, urgent", req.Priority), http.StatusBadRequest)
		return
	}

	id, err := s.queue.Submit(req.Payload, req.UserID, priority, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrQueueFull):
			http.Error(w, "Queue is full", http.StatusTooManyRequests)
		case errors.Is(err, scheduler.ErrShuttingDown):
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		case errors.Is(err, scheduler.ErrInvalidPriority):
			http.Error(w, "Invalid priority", http.StatusBadRequest)
		default:
			log.Printf("[API] Error submitting request: %v", err)
			http.Error(w, "Failed to submit request", http.StatusInternalServerError)
		}
		return
	}

	log.Printf("[API] Request %s submitted (user: %s, priority: %s)", id, req.UserID, priority)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"request_id": id,
		"status":     string(models.StatusQueued),
	})
}

// GetAnalysis retrieves the current snapshot of a request
func (s *Server) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	snap, err := s.queue.Status(id)
	if err != nil {
		if errors.Is(err, scheduler.ErrRequestNotFound) {
			http.Error(w, "Request not found", http.StatusNotFound)
			return
		}
		log.Printf("[API] Error getting request %s: %v", id, err)
		http.Error(w, "Failed to get request", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// CancelAnalysis cancels a queued or in-flight request
func (s *Server) CancelAnalysis(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	canceled := s.queue.Cancel(id)
	if !canceled {
		// Distinguish an unknown id from a request already finished
		if _, err := s.queue.Status(id); errors.Is(err, scheduler.ErrRequestNotFound) {
			http.Error(w, "Request not found", http.StatusNotFound)
			return
		}
	} else {
		log.Printf("[API] Request %s canceled", id)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"request_id": id,
		"canceled":   canceled,
	})
}

// GetStats returns the scheduler statistics snapshot
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.queue.Stats())
}

// CreateSession issues a short-lived session token for a user
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		http.Error(w, "Sessions are not enabled", http.StatusNotImplemented)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	token, err := s.tokens.GenerateToken(req.UserID, s.sessionTTL)
	if err != nil {
		log.Printf("[API] Error generating session token: %v", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	log.Printf("[API] Session created for user %s", req.UserID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user_id":    req.UserID,
		"token":      token,
		"expires_at": time.Now().Add(s.sessionTTL),
	})
}

// Health returns the liveness status of the daemon
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	stats := s.queue.Stats()

	resp := map[string]interface{}{
		"status":         "healthy",
		"queue_length":   stats.CurrentQueueSize,
		"active_workers": stats.ActiveWorkers,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}
	if s.probe != nil {
		if host, err := s.probe.Stats(); err == nil {
			resp["host"] = host
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// authMiddleware accepts either the static bearer key or a valid session
// token pair. The health endpoint stays open for load balancer probes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		if auth.SecureCompare(r.Header.Get("Authorization"), "Bearer "+s.apiKey) {
			next.ServeHTTP(w, r)
			return
		}

		userID := r.Header.Get("X-User-ID")
		token := r.Header.Get("X-Session-Token")
		if userID != "" && token != "" && s.tokens.ValidateToken(userID, token) == nil {
			next.ServeHTTP(w, r)
			return
		}

		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// statusRecorder captures the response status for access logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if s.access != nil {
			s.access.Info("request", map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote":      r.RemoteAddr,
			})
			return
		}
		log.Printf("[API] %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
