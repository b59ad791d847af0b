package webhook

import (
	"fmt"

	"github.com/mattjoyce/hireflow/internal/config"
)

// FromGlobalConfig derives the server config and verifier from the service
// config.
func FromGlobalConfig(cfg *config.Config) (Config, *Verifier, error) {
	if cfg == nil {
		return Config{}, nil, fmt.Errorf("config is nil")
	}

	wc := Config{
		Listen:             cfg.Webhooks.Listen,
		MaxBodySize:        cfg.Webhooks.MaxBodySize,
		CORSAllowedOrigins: cfg.Webhooks.CORSAllowedOrigins,
	}
	if wc.MaxBodySize <= 0 {
		wc.MaxBodySize = DefaultMaxBodySize
	}

	v, err := NewVerifier(VerifyOptions{
		Secret:          cfg.Webhooks.Secret,
		SignatureHeader: cfg.Webhooks.SignatureHeader,
		AllowedIPs:      cfg.Verification.AllowedIPs,
		SkipIPCheck:     cfg.Verification.SkipIPCheck,
		AllowUnsigned:   cfg.Verification.AllowUnsigned,
	})
	if err != nil {
		return Config{}, nil, fmt.Errorf("webhook verification: %w", err)
	}
	return wc, v, nil
}
