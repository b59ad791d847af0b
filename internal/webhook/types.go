package webhook

import (
	"context"

	"github.com/mattjoyce/hireflow/internal/candidate"
	"github.com/mattjoyce/hireflow/internal/tally"
)

// Ingester applies a verified, decoded delivery. candidate.Service
// implements it.
type Ingester interface {
	IngestApplication(ctx context.Context, ev tally.Event) (*candidate.Result, error)
	IngestGeneralCompetency(ctx context.Context, ev tally.Event) (*candidate.Result, error)
	IngestSpecializedCompetency(ctx context.Context, ev tally.Event) (*candidate.Result, error)
	IngestAgreement(ctx context.Context, ev tally.Event) (*candidate.Result, error)
	Ping(ctx context.Context) error
}

// Config holds webhook server configuration.
type Config struct {
	Listen             string
	MaxBodySize        int64
	CORSAllowedOrigins []string
}

// SuccessResponse wraps the data of every accepted delivery.
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	DefaultMaxBodySize     = 1 << 20 // 1 MB
	DefaultSignatureHeader = "tally-signature"
)
