package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort        = "8080"
	defaultRateLimit   = 100
	defaultCardPool    = 500
	defaultOrphanGrace = 10 * time.Minute
	defaultSocketPort  = "8081"
	defaultReconcile   = 5 * time.Minute
)

type Config struct {
	MongoURI     string
	Port         string
	JWTSecret    string
	RateLimit    int // requests per IP per minute
	NatsURL      string
	NatsToken    string
	InitPassword string
	CardPoolSize int
	Location     *time.Location
	OrphanGrace  time.Duration
	CORSOrigins  []string
	LogLevel     string

	ReconcileInterval time.Duration
}

// Load reads the gate service configuration from the environment.
func Load() (Config, error) {
	return load("MONGODB_URI", "JWT_SECRET_KEY")
}

// LoadRelay reads the configuration of the standalone feed relay, which
// needs no database. It listens on SOCKET_SERVICE_PORT.
func LoadRelay() (Config, error) {
	cfg, err := load("JWT_SECRET_KEY")
	cfg.Port = envOr("SOCKET_SERVICE_PORT", defaultSocketPort)
	return cfg, err
}

// LoadController reads the configuration of the reconciliation controller.
func LoadController() (Config, error) {
	return load("MONGODB_URI")
}

func load(required ...string) (Config, error) {
	cfg := Config{
		MongoURI:     os.Getenv("MONGODB_URI"),
		Port:         envOr("GATE_SERVICE_PORT", defaultPort),
		JWTSecret:    os.Getenv("JWT_SECRET_KEY"),
		NatsURL:      os.Getenv("NATS_URL"),
		NatsToken:    os.Getenv("NATS_TOKEN"),
		InitPassword: os.Getenv("INIT_PASSWORD"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		CORSOrigins:  splitList(os.Getenv("CORS_ORIGINS")),
	}

	for _, key := range required {
		if os.Getenv(key) == "" {
			return cfg, fmt.Errorf("%s is required", key)
		}
	}

	var err error
	if cfg.RateLimit, err = envInt("RATE_LIMIT", defaultRateLimit); err != nil {
		return cfg, err
	}
	if cfg.CardPoolSize, err = envInt("CARD_POOL_SIZE", defaultCardPool); err != nil {
		return cfg, err
	}

	cfg.OrphanGrace = defaultOrphanGrace
	if v := os.Getenv("ORPHAN_GRACE"); v != "" {
		if cfg.OrphanGrace, err = time.ParseDuration(v); err != nil {
			return cfg, fmt.Errorf("invalid ORPHAN_GRACE value %q: %w", v, err)
		}
	}

	cfg.ReconcileInterval = defaultReconcile
	if v := os.Getenv("RECONCILE_INTERVAL"); v != "" {
		cfg.ReconcileInterval, err = time.ParseDuration(v)
		if err != nil || cfg.ReconcileInterval <= 0 {
			return cfg, fmt.Errorf("invalid RECONCILE_INTERVAL value %q", v)
		}
	}

	cfg.Location = time.Local
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		if cfg.Location, err = time.LoadLocation(tz); err != nil {
			return cfg, fmt.Errorf("invalid TIMEZONE value %q: %w", tz, err)
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s value %q", key, v)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
