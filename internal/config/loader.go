package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML config file, expands ${VAR} references, applies
// defaults, verifies the .checksums manifest when one sits next to the file,
// and validates the result.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	if err := VerifyChecksums(absPath); err != nil && !errors.Is(err, ErrNoChecksums) {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = absPath

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath makes configPath absolute. A directory resolves to the
// config.yaml inside it.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}
	return absPath, nil
}

// Parse decodes config bytes over the defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Service.Environment = strings.ToLower(strings.TrimSpace(cfg.Service.Environment))
	cfg.Service.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Service.LogLevel))
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))
	return cfg, nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is so validation can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// IsProduction reports whether development bypasses must be refused.
func (c *Config) IsProduction() bool {
	return c.Service.Environment == EnvProduction
}

// Validate checks a parsed config.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch cfg.Service.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		add("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	switch cfg.Service.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		add("service.environment must be one of: development, staging, production (got %q)", cfg.Service.Environment)
	}

	if cfg.State.Path == "" {
		add("state.path is required")
	}

	if cfg.Webhooks.Listen == "" {
		add("webhooks.listen is required")
	}
	if cfg.Webhooks.SignatureHeader == "" {
		add("webhooks.signature_header is required")
	}
	if cfg.Webhooks.MaxBodySize <= 0 {
		add("webhooks.max_body_size must be positive")
	}
	if envVarPattern.MatchString(cfg.Webhooks.Secret) {
		add("webhooks.secret references an unset environment variable")
	}

	for _, entry := range cfg.Verification.AllowedIPs {
		if !validIPEntry(entry) {
			add("verification.allowed_ips: %q is not an IP, CIDR or \"*\"", entry)
		}
	}

	if cfg.IsProduction() {
		if cfg.Webhooks.Secret == "" {
			add("webhooks.secret is required in production")
		}
		if cfg.Verification.AllowUnsigned {
			add("verification.allow_unsigned is not permitted in production")
		}
		if cfg.Verification.SkipIPCheck {
			add("verification.skip_ip_check is not permitted in production")
		}
		if len(cfg.Verification.AllowedIPs) == 0 {
			add("verification.allowed_ips is required in production")
		}
	}

	if cfg.RateLimit.Requests <= 0 {
		add("rate_limit.requests must be positive")
	}
	if cfg.RateLimit.Window <= 0 {
		add("rate_limit.window must be positive")
	}
	switch cfg.RateLimit.Backend {
	case RateLimitMemory:
	case RateLimitRedis:
		if cfg.RateLimit.Redis.Addr == "" {
			add("rate_limit.redis.addr is required for the redis backend")
		}
	default:
		add("rate_limit.backend must be memory or redis (got %q)", cfg.RateLimit.Backend)
	}

	if cfg.Assessment.GCThreshold < 0 {
		add("assessment.gc_threshold must not be negative")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			add("api.listen is required when api.enabled is true")
		}
		if len(cfg.API.Tokens) == 0 {
			add("api.tokens must define at least one token when api.enabled is true")
		}
		seen := map[string]bool{}
		for i, tok := range cfg.API.Tokens {
			switch {
			case tok.Token == "" || envVarPattern.MatchString(tok.Token):
				add("api.tokens[%d].token is empty or unresolved", i)
			case seen[tok.Token]:
				add("api.tokens[%d].token is a duplicate", i)
			}
			seen[tok.Token] = true
			if tok.UserID == "" {
				add("api.tokens[%d].user_id is required", i)
			}
			if len(tok.Scopes) == 0 {
				add("api.tokens[%d].scopes must not be empty", i)
			}
		}
	}

	return errors.Join(errs...)
}

func validIPEntry(entry string) bool {
	entry = strings.TrimSpace(entry)
	if entry == "*" {
		return true
	}
	if _, err := netip.ParsePrefix(entry); err == nil {
		return true
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}
