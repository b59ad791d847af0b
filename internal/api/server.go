package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/hireflow/internal/auth"
	"github.com/mattjoyce/hireflow/internal/candidate"
	"github.com/mattjoyce/hireflow/internal/recruit"
	"github.com/mattjoyce/hireflow/internal/store"
)

// Pipeline is the set of staff operations the API exposes. It is satisfied
// by *candidate.Service.
type Pipeline interface {
	ReviewAssessment(ctx context.Context, assessmentID string, passed bool, reviewer string) (*recruit.Assessment, error)
	AdvanceToInterview(ctx context.Context, applicationID, actor string) (*candidate.Result, error)
	ScheduleInterview(ctx context.Context, applicationID string, req candidate.InterviewRequest, actor string) (*recruit.Interview, error)
	CompleteInterview(ctx context.Context, interviewID string, outcome recruit.InterviewOutcome, notes, actor string) (*recruit.Interview, error)
	Decide(ctx context.Context, applicationID string, req candidate.DecisionRequest, actor string) (*candidate.Result, error)
	WithdrawOffer(ctx context.Context, applicationID, reason, actor string) (*candidate.Result, error)
	Withdraw(ctx context.Context, applicationID, reason, actor string) (*candidate.Result, error)
	History(ctx context.Context, applicationID string) ([]candidate.HistoryEntry, error)
	StageCounts(ctx context.Context) ([]store.StageCount, error)
	Ping(ctx context.Context) error
}

// Config holds API server configuration
type Config struct {
	Listen string
	Tokens []auth.TokenConfig
}

// Server represents the admin HTTP API server
type Server struct {
	config    Config
	pipeline  Pipeline
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, pipeline Pipeline, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		pipeline:  pipeline,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	// Run server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		read := s.requireScopes(auth.ScopeApplicationsRead)
		write := s.requireScopes(auth.ScopeApplicationsWrite)

		r.With(write).Post("/assessments/{id}/review", s.handleReview)
		r.With(write).Post("/interviews/{id}/complete", s.handleCompleteInterview)

		r.Route("/applications/{id}", func(r chi.Router) {
			r.With(write).Post("/advance", s.handleAdvance)
			r.With(write).Post("/interviews", s.handleScheduleInterview)
			r.With(write).Post("/decision", s.handleDecision)
			r.With(write).Post("/withdraw-offer", s.handleWithdrawOffer)
			r.With(write).Post("/withdraw", s.handleWithdraw)
			r.With(read).Get("/history", s.handleHistory)
		})

		r.With(read).Get("/stats/stages", s.handleStageCounts)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
