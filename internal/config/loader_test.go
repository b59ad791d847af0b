package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const devConfig = `
service:
  environment: development
  log_level: debug
state:
  path: ./hireflow.db
webhooks:
  secret: s3cret
verification:
  allow_unsigned: true
  skip_ip_check: true
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, devConfig))
	require.NoError(t, err)

	assert.Equal(t, "hireflow", cfg.Service.Name)
	assert.Equal(t, EnvDevelopment, cfg.Service.Environment)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, "./hireflow.db", cfg.State.Path)
	assert.Equal(t, "tally-signature", cfg.Webhooks.SignatureHeader)
	assert.Equal(t, int64(1<<20), cfg.Webhooks.MaxBodySize)
	assert.Equal(t, RateLimitMemory, cfg.RateLimit.Backend)
	assert.Equal(t, 60, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 800.0, cfg.Assessment.GCThreshold)
	assert.False(t, cfg.IsProduction())
	assert.True(t, filepath.IsAbs(cfg.Path))
}

func TestLoadDirectoryUsesConfigYAML(t *testing.T) {
	path := writeConfig(t, devConfig)
	cfg, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadInterpolatesEnv(t *testing.T) {
	t.Setenv("HIREFLOW_SECRET", "from-env")
	t.Setenv("HIREFLOW_DB", "/tmp/hf.db")

	cfg, err := Load(writeConfig(t, `
service:
  environment: production
state:
  path: ${HIREFLOW_DB}
webhooks:
  secret: ${HIREFLOW_SECRET}
verification:
  allowed_ips: ["203.0.113.0/24", "198.51.100.7"]
rate_limit:
  window: 30s
  requests: 10
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Webhooks.Secret)
	assert.Equal(t, "/tmp/hf.db", cfg.State.Path)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 10, cfg.RateLimit.Requests)
}

func TestInterpolateEnvLeavesUnsetVariables(t *testing.T) {
	t.Setenv("SET_ONE", "x")
	assert.Equal(t, "x-${HIREFLOW_TEST_UNSET_VAR}", interpolateEnv("${SET_ONE}-${HIREFLOW_TEST_UNSET_VAR}"))
}

func TestValidateProductionRefusesBypasses(t *testing.T) {
	cfg := Defaults()
	cfg.Verification.AllowUnsigned = true
	cfg.Verification.SkipIPCheck = true

	err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "webhooks.secret is required in production")
	assert.Contains(t, msg, "allow_unsigned is not permitted")
	assert.Contains(t, msg, "skip_ip_check is not permitted")
	assert.Contains(t, msg, "allowed_ips is required in production")
}

func TestValidateDevelopmentAllowsBypasses(t *testing.T) {
	cfg := Defaults()
	cfg.Service.Environment = EnvDevelopment
	cfg.Verification.AllowUnsigned = true
	cfg.Verification.SkipIPCheck = true
	assert.NoError(t, Validate(cfg))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Defaults()
		cfg.Service.Environment = EnvStaging
		cfg.Webhooks.Secret = "s"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.Service.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "bad environment", mutate: func(c *Config) { c.Service.Environment = "qa" }, wantErr: "environment"},
		{name: "missing state path", mutate: func(c *Config) { c.State.Path = "" }, wantErr: "state.path"},
		{name: "zero body size", mutate: func(c *Config) { c.Webhooks.MaxBodySize = 0 }, wantErr: "max_body_size"},
		{name: "unresolved secret", mutate: func(c *Config) { c.Webhooks.Secret = "${NOPE}" }, wantErr: "unset environment variable"},
		{name: "bad ip", mutate: func(c *Config) { c.Verification.AllowedIPs = []string{"not-an-ip"} }, wantErr: "allowed_ips"},
		{name: "wildcard ip", mutate: func(c *Config) { c.Verification.AllowedIPs = []string{"*", "0.0.0.0/0", "::1"} }},
		{name: "zero requests", mutate: func(c *Config) { c.RateLimit.Requests = 0 }, wantErr: "rate_limit.requests"},
		{name: "zero window", mutate: func(c *Config) { c.RateLimit.Window = 0 }, wantErr: "rate_limit.window"},
		{name: "unknown backend", mutate: func(c *Config) { c.RateLimit.Backend = "etcd" }, wantErr: "rate_limit.backend"},
		{name: "redis without addr", mutate: func(c *Config) { c.RateLimit.Backend = RateLimitRedis }, wantErr: "redis.addr"},
		{
			name: "redis with addr",
			mutate: func(c *Config) {
				c.RateLimit.Backend = RateLimitRedis
				c.RateLimit.Redis.Addr = "localhost:6379"
			},
		},
		{name: "negative threshold", mutate: func(c *Config) { c.Assessment.GCThreshold = -1 }, wantErr: "gc_threshold"},
		{name: "api without tokens", mutate: func(c *Config) { c.API.Enabled = true }, wantErr: "at least one token"},
		{
			name: "api token missing user",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Tokens = []APIToken{{Token: "t", Scopes: []string{"applications:rw"}}}
			},
			wantErr: "user_id",
		},
		{
			name: "api duplicate token",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Tokens = []APIToken{
					{Token: "t", UserID: "a", Scopes: []string{"*"}},
					{Token: "t", UserID: "b", Scopes: []string{"*"}},
				}
			},
			wantErr: "duplicate",
		},
		{
			name: "api valid",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Tokens = []APIToken{{Token: "t", UserID: "recruiter-1", Scopes: []string{"applications:ro"}}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseNormalizesCase(t *testing.T) {
	cfg, err := Parse([]byte("service:\n  environment: Development\n  log_level: WARN\nrate_limit:\n  backend: Redis\n"))
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Service.Environment)
	assert.Equal(t, "warn", cfg.Service.LogLevel)
	assert.Equal(t, RateLimitRedis, cfg.RateLimit.Backend)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("service: [unterminated"))
	assert.Error(t, err)
}
