package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/hireflow/internal/candidate"
	"github.com/mattjoyce/hireflow/internal/extract"
	"github.com/mattjoyce/hireflow/internal/ratelimit"
	"github.com/mattjoyce/hireflow/internal/store"
	"github.com/mattjoyce/hireflow/internal/tally"
)

type ingestFunc func(ctx context.Context, ev tally.Event) (*candidate.Result, error)

// envelope is decoded alongside the typed event to tell a missing
// submission id or field list from an empty one.
type envelope struct {
	Data *struct {
		SubmissionID string          `json:"submissionId"`
		Fields       json.RawMessage `json:"fields"`
	} `json:"data"`
}

func (s *Server) handleDelivery(ingest ingestFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ip := ClientIP(r.Header)
		key := ip
		if key == "" {
			key = ratelimit.UnknownKey
		}
		limit := s.limiter.Check(ctx, key)
		setRateLimitHeaders(w, limit)
		if !limit.Allowed {
			retry := int(time.Until(limit.ResetAt).Seconds()) + 1
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			s.respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if int64(len(body)) > s.config.MaxBodySize {
			s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}

		if res := s.verifier.Verify(r.Header, body); !res.Valid {
			s.logger.Warn("webhook verification failed",
				"path", r.URL.Path,
				"reason", res.Reason,
				"ip", res.IP,
			)
			s.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var (
			ev  tally.Event
			env envelope
		)
		if err := json.Unmarshal(body, &env); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		if env.Data == nil || env.Data.SubmissionID == "" {
			s.respondError(w, http.StatusBadRequest, "missing data.submissionId")
			return
		}
		if fields := bytes.TrimSpace(env.Data.Fields); len(fields) == 0 || fields[0] != '[' {
			s.respondError(w, http.StatusBadRequest, "missing data.fields")
			return
		}
		if err := json.Unmarshal(body, &ev); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}

		result, err := ingest(ctx, ev)
		if err != nil {
			status, msg := statusFor(err)
			logger := s.logger.With("path", r.URL.Path, "submission_id", ev.Data.SubmissionID)
			if status >= http.StatusInternalServerError {
				logger.Error("webhook processing failed", "error", err)
			} else {
				logger.Info("webhook refused", "status", status, "error", err)
			}
			s.respondError(w, status, msg)
			return
		}

		s.respondJSON(w, http.StatusOK, SuccessResponse{Success: true, Data: result})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, res ratelimit.Result) {
	remaining := res.Remaining
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// statusFor maps a service error to an HTTP status and the message safe to
// return.
func statusFor(err error) (int, string) {
	var missing *extract.MissingFieldError
	switch {
	case errors.As(err, &missing):
		return http.StatusBadRequest, missing.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case candidate.IsInvariant(err):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
