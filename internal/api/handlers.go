package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/hireflow/internal/candidate"
	"github.com/mattjoyce/hireflow/internal/store"
)

// maxRequestBody caps admin request bodies.
const maxRequestBody = 64 << 10

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleReview handles POST /assessments/{id}/review
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Passed == nil {
		s.writeError(w, http.StatusBadRequest, "passed is required")
		return
	}

	a, err := s.pipeline.ReviewAssessment(r.Context(), chi.URLParam(r, "id"), *req.Passed, actor(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, assessmentResponse(a))
}

// handleAdvance handles POST /applications/{id}/advance
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	res, err := s.pipeline.AdvanceToInterview(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleScheduleInterview handles POST /applications/{id}/interviews
func (s *Server) handleScheduleInterview(w http.ResponseWriter, r *http.Request) {
	var req candidate.InterviewRequest
	if !s.decode(w, r, &req) {
		return
	}

	iv, err := s.pipeline.ScheduleInterview(r.Context(), chi.URLParam(r, "id"), req, actor(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, interviewResponse(iv))
}

// handleCompleteInterview handles POST /interviews/{id}/complete
func (s *Server) handleCompleteInterview(w http.ResponseWriter, r *http.Request) {
	var req CompleteInterviewRequest
	if !s.decode(w, r, &req) {
		return
	}

	iv, err := s.pipeline.CompleteInterview(r.Context(), chi.URLParam(r, "id"), req.Outcome, req.Notes, actor(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, interviewResponse(iv))
}

// handleDecision handles POST /applications/{id}/decision
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req candidate.DecisionRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.pipeline.Decide(r.Context(), chi.URLParam(r, "id"), req, actor(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleWithdrawOffer handles POST /applications/{id}/withdraw-offer
func (s *Server) handleWithdrawOffer(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.pipeline.WithdrawOffer(r.Context(), chi.URLParam(r, "id"), req.Reason, actor(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleWithdraw handles POST /applications/{id}/withdraw
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.pipeline.Withdraw(r.Context(), chi.URLParam(r, "id"), req.Reason, actor(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleHistory handles GET /applications/{id}/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.pipeline.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleStageCounts handles GET /stats/stages
func (s *Server) handleStageCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.pipeline.StageCounts(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if counts == nil {
		counts = []store.StageCount{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"stages": counts})
}

// decode reads an optional JSON body into v. An empty body leaves v zero.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	s.writeError(w, status, msg)
}

// statusFor maps a service error to an HTTP status and the message safe to
// return.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case candidate.IsInvariant(err):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError sends a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
