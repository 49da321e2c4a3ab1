package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"basegraph.app/relay/core/db"
)

// ServiceType distinguishes the entrypoint a Config is loaded for, since the
// scheduler and the HTTP ingress read a slightly different subset of
// variables (mirrors the split between cmd/server and cmd/scheduler).
type ServiceType string

const (
	ServiceTypeAPI       ServiceType = "api"
	ServiceTypeScheduler ServiceType = "scheduler"
)

// Config holds all application configuration.
type Config struct {
	Env         string
	Port        string
	Service     ServiceType
	DB          db.Config
	RedisURL    string
	BearerToken string

	MaxConcurrentJobs int
	ReposDir          string
	WorktreesDir      string
	CoderCLIBin       string
	CoderCLIModel     string
	HostingCLIBin     string

	FeedbackTimeout time.Duration

	GitLabToken   string
	GitLabBaseURL string

	CosmeticFeatureTypeID int64

	OTel OTelConfig
}

// OTelConfig controls optional OpenTelemetry wiring. Left disabled unless an
// endpoint is configured, matching the teacher's "no endpoint => no otel"
// convention in cmd/server/main.go.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Headers        string
}

func (o OTelConfig) Enabled() bool {
	return o.Endpoint != ""
}

// Load loads configuration from environment variables, applying the
// defaults named in the external-interfaces contract.
func Load(service ServiceType) (Config, error) {
	home, _ := os.UserHomeDir()

	cfg := Config{
		Env:         getEnv("RELAY_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		Service:     service,
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		BearerToken: os.Getenv("API_BEARER_SECRET"),
		DB: db.Config{
			DSN:      buildDSN(),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 2),
		ReposDir:          getEnv("REPOS_DIR", filepathJoin(home, "repos")),
		WorktreesDir:      getEnv("WORKTREES_DIR", filepathJoin(home, "worktrees")),
		CoderCLIBin:       os.Getenv("CODER_CLI_BIN"),
		CoderCLIModel:     os.Getenv("CODER_CLI_MODEL"),
		HostingCLIBin:     getEnv("HOSTING_CLI_BIN", "gh"),

		FeedbackTimeout: getEnvDuration("FEEDBACK_COMMAND_TIMEOUT", 5*time.Minute),

		GitLabToken:   os.Getenv("GITLAB_TOKEN"),
		GitLabBaseURL: os.Getenv("GITLAB_BASE_URL"),

		CosmeticFeatureTypeID: int64(getEnvInt("COSMETIC_FEATURE_TYPE_ID", 0)),

		OTel: OTelConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "relay-orchestrator"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Headers:        os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
		},
	}

	if service == ServiceTypeAPI && cfg.BearerToken == "" {
		return Config{}, fmt.Errorf("API_BEARER_SECRET is required")
	}

	return cfg, nil
}

// buildDSN constructs the database connection string from individual env
// vars, falling back to DATABASE_URL when provided wholesale.
func buildDSN() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DATABASE_HOST", "localhost")
	port := getEnv("DATABASE_PORT", "5432")
	user := getEnv("DATABASE_USER", "postgres")
	password := getEnv("DATABASE_PASSWORD", "postgres")
	name := getEnv("DATABASE_NAME", "relay_orchestrator")
	sslMode := getEnv("DATABASE_SSLMODE", "disable")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslMode,
	)
}

// IsProduction returns true if running in production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func filepathJoin(base, sub string) string {
	if base == "" {
		return sub
	}
	return base + string(os.PathSeparator) + sub
}
