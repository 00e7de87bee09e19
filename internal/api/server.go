// Package api implements the ops HTTP server: a health endpoint for load
// balancer probes and an authenticated resend endpoint for support tooling.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"shopmail/internal/types"
)

// healthCheckTimeout bounds the total time for all health probes.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is one subsystem check surfaced by GET /health.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// NotificationResender is the slice of the notification service the resend
// endpoint needs.
type NotificationResender interface {
	Resend(ctx context.Context, notificationID, toOverride string) (*types.NotificationRecord, error)
}

// NotificationLister serves the audit listing endpoint.
type NotificationLister interface {
	ListByResource(ctx context.Context, resourceID string) ([]types.NotificationRecord, error)
}

// Server is the ops API. Construct with NewServer, then serve Router().
type Server struct {
	logger    types.Logger
	validate  *validator.Validate
	adminKey  types.SecretString
	resender  NotificationResender
	lister    NotificationLister
	probes    []HealthProbe
	router    chi.Router
}

// ServerConfig carries the server's collaborators.
type ServerConfig struct {
	Logger       types.Logger
	AdminAPIKey  types.SecretString
	Resender     NotificationResender
	Lister       NotificationLister
	HealthProbes []HealthProbe
}

func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		logger:   cfg.Logger,
		validate: validator.New(),
		adminKey: cfg.AdminAPIKey,
		resender: cfg.Resender,
		lister:   cfg.Lister,
		probes:   cfg.HealthProbes,
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the fully wired handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(requestID)
	r.Use(s.requestLog)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdminKey)
		r.Post("/notifications/{id}/resend", s.handleResend)
		r.Get("/resources/{id}/notifications", s.handleListByResource)
	})

	return r
}

// requestID assigns a request id and stores it in the context. An inbound
// X-Request-ID is trusted so ids propagate across internal hops.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

// recoverer catches handler panics and converts them into opaque 500
// responses. Outermost middleware in the chain.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				s.logger.Error("panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", fmt.Sprintf("%v", rvr),
					"stack", string(debug.Stack()),
				)
				Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
					"an unexpected error occurred", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusCapture records the status written by downstream handlers.
type statusCapture struct {
	http.ResponseWriter
	status  int
	written bool
}

func (c *statusCapture) WriteHeader(code int) {
	if !c.written {
		c.status = code
		c.written = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *statusCapture) Write(b []byte) (int, error) {
	if !c.written {
		c.status = http.StatusOK
		c.written = true
	}
	return c.ResponseWriter.Write(b)
}

func (c *statusCapture) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sc := &statusCapture{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sc, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sc.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", types.GetRequestID(r.Context()),
		)
	})
}

// requireAdminKey guards the mutation endpoints with the shared ops key,
// compared in constant time.
func (s *Server) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("X-Admin-Key")
		expected := s.adminKey.Unmask()
		if expected == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			Error(w, r, types.NewAppError(types.ErrCodeAuthUnauthorized,
				"invalid or missing admin key", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// componentStatus is the health state of one subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// handleHealth runs all probes concurrently under a short deadline. Any probe
// failure turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	var (
		mu         sync.Mutex
		components = make(map[string]componentStatus, len(s.probes))
		unhealthy  bool
		wg         sync.WaitGroup
	)

	for _, probe := range s.probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()

			var err error
			func() {
				defer func() {
					if rvr := recover(); rvr != nil {
						err = fmt.Errorf("probe panicked: %v", rvr)
					}
				}()
				err = p.Check(ctx)
			}()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				unhealthy = true
				components[p.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
			} else {
				components[p.Name()] = componentStatus{Status: "healthy"}
			}
		}(probe)
	}
	wg.Wait()

	resp := healthResponse{Status: "healthy", Components: components}
	status := http.StatusOK
	if unhealthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}
