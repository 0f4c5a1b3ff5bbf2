package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shortmark/shortmark/internal/grading"
)

// Grader is the grading surface the HTTP layer depends on.
type Grader interface {
	Grade(ctx context.Context, call grading.Call) (*grading.Result, error)
}

// Config tunes the HTTP server.
type Config struct {
	// Token, when set, is required as a bearer token on grading routes.
	Token string
	// RateLimitPerMinute caps grading calls per caller. Zero disables
	// the limiter.
	RateLimitPerMinute int
}

// Server exposes the grading pipeline over HTTP.
type Server struct {
	grader  Grader
	cfg     Config
	logger  *slog.Logger
	limiter *rateLimiter
}

// NewServer builds a Server. logger may be nil.
func NewServer(grader Grader, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = newRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	}
	return &Server{grader: grader, cfg: cfg, logger: logger, limiter: limiter}
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)
		r.Post("/v1/grade", s.handleGrade)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// logRequests emits one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"durationMs", time.Since(start).Milliseconds(),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

// authenticate enforces the bearer token when one is configured.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" {
			if bearerToken(r) != s.cfg.Token {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing or invalid bearer token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects callers over the per-minute budget. Callers are
// keyed by bearer token when present, remote address otherwise.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			key := bearerToken(r)
			if key == "" {
				key = r.RemoteAddr
			}
			if !s.limiter.Allow(key) {
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many grading requests, slow down")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
