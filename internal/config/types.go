package config

import "time"

// Config represents the complete hireflow configuration.
type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	State        StateConfig        `yaml:"state"`
	Webhooks     WebhooksConfig     `yaml:"webhooks"`
	Verification VerificationConfig `yaml:"verification"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Assessment   AssessmentConfig   `yaml:"assessment"`
	API          APIConfig          `yaml:"api,omitempty"`

	// Path is the absolute path the config was loaded from.
	Path string `yaml:"-"`
}

// Environments accepted by service.environment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	LogLevel    string `yaml:"log_level"`
	Environment string `yaml:"environment"`
}

// StateConfig defines where the database and the instance lock live.
type StateConfig struct {
	Path     string `yaml:"path"`
	LockPath string `yaml:"lock_path"`
}

// WebhooksConfig defines the inbound webhook listener.
type WebhooksConfig struct {
	Listen             string   `yaml:"listen"`
	Secret             string   `yaml:"secret"`
	SignatureHeader    string   `yaml:"signature_header"`
	MaxBodySize        int64    `yaml:"max_body_size"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins,omitempty"`
}

// VerificationConfig controls who may call the webhooks. The two bypass flags
// exist for local development and are refused in production.
type VerificationConfig struct {
	AllowedIPs    []string `yaml:"allowed_ips"`
	SkipIPCheck   bool     `yaml:"skip_ip_check"`
	AllowUnsigned bool     `yaml:"allow_unsigned"`
}

// Rate limit backends.
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

type RateLimitConfig struct {
	Backend  string        `yaml:"backend"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	Redis    RedisConfig   `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// AssessmentConfig holds grading parameters. The threshold is copied onto
// each assessment when it is graded.
type AssessmentConfig struct {
	GCThreshold float64 `yaml:"gc_threshold"`
}

// APIConfig defines the admin HTTP API.
type APIConfig struct {
	Enabled bool       `yaml:"enabled"`
	Listen  string     `yaml:"listen"`
	Tokens  []APIToken `yaml:"tokens,omitempty"`
}

// APIToken binds a bearer token to the acting user and their scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	UserID string   `yaml:"user_id"`
	Scopes []string `yaml:"scopes"`
}

// Defaults returns a config with default values.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "hireflow",
			LogLevel:    "info",
			Environment: EnvProduction,
		},
		State: StateConfig{
			Path:     "./data/hireflow.db",
			LockPath: "./data/hireflow.lock",
		},
		Webhooks: WebhooksConfig{
			Listen:          "0.0.0.0:8090",
			SignatureHeader: "tally-signature",
			MaxBodySize:     1 << 20,
		},
		RateLimit: RateLimitConfig{
			Backend:  RateLimitMemory,
			Requests: 60,
			Window:   time.Minute,
			Redis: RedisConfig{
				Prefix: "hireflow:ratelimit",
			},
		},
		Assessment: AssessmentConfig{
			GCThreshold: 800,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8091",
		},
	}
}
