// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// price checker, storage, chat delivery, the admin HTTP API, logging, and
// observability. No configuration file is required.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CheckerConfig controls the periodic checking engine.
type CheckerConfig struct {
	Interval       time.Duration // CHECK_INTERVAL_MINUTES, measured from cycle end
	MaxConcurrency int           // MAX_CONCURRENCY, global fetch cap
	RequestTimeout time.Duration // REQUEST_TIMEOUT, per fetch
	UserAgent      string        // USER_AGENT
	MaxBodyBytes   int64         // MAX_BODY_BYTES, response body cap
	RunOnStart     bool          // CHECK_ON_START
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite path
	DSN    string // Postgres DSN
}

// BotConfig configures Telegram delivery and the command poller.
type BotConfig struct {
	Token       string        // BOT_TOKEN; empty disables Telegram
	PollTimeout time.Duration // BOT_POLL_TIMEOUT
}

// PubSubConfig configures the optional Google Pub/Sub notification sink.
type PubSubConfig struct {
	ProjectID string
	TopicID   string
}

// Enabled reports whether both project and topic are configured.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.ProjectID) != "" && strings.TrimSpace(p.TopicID) != ""
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	Checker CheckerConfig
	Storage StorageConfig
	Bot     BotConfig
	PubSub  PubSubConfig

	// Admin HTTP API
	HTTPEnabled       bool
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	GinMode           string // debug|release|test
	APIBasePath       string
	SwaggerEnabled    bool
	RateRPS           float64
	RateBurst         int
	IdempotencyTTL    time.Duration
	CORS              CORSConfig
	Security          SecurityConfig

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool

	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Checker: CheckerConfig{
			Interval:       time.Duration(getint("CHECK_INTERVAL_MINUTES", 30)) * time.Minute,
			MaxConcurrency: getint("MAX_CONCURRENCY", 5),
			RequestTimeout: getdur("REQUEST_TIMEOUT", 20*time.Second),
			UserAgent:      getenv("USER_AGENT", "PriceWatcherBot/0.1 (respect robots; personal use)"),
			MaxBodyBytes:   int64(getint("MAX_BODY_BYTES", 8<<20)),
			RunOnStart:     getbool("CHECK_ON_START", true),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "data.db"),
			DSN:    getenv("DB_DSN", ""),
		},
		Bot: BotConfig{
			Token:       getenv("BOT_TOKEN", ""),
			PollTimeout: getdur("BOT_POLL_TIMEOUT", 30*time.Second),
		},
		PubSub: PubSubConfig{
			ProjectID: getenv("PUBSUB_PROJECT_ID", ""),
			TopicID:   getenv("PUBSUB_TOPIC_ID", ""),
		},

		HTTPEnabled:       getbool("HTTP_ENABLED", true),
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		APIBasePath:       normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		SwaggerEnabled:    getbool("SWAGGER_ENABLED", false),
		RateRPS:           getfloat("RATE_RPS", 5.0),
		RateBurst:         getint("RATE_BURST", 10),
		IdempotencyTTL:    getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "price-watcher"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.Checker.UserAgent = strings.TrimSpace(cfg.Checker.UserAgent)

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if cfg.Checker.Interval <= 0 {
		return cfg, errors.New("CHECK_INTERVAL_MINUTES must be > 0")
	}
	if cfg.Checker.MaxConcurrency < 1 {
		return cfg, errors.New("MAX_CONCURRENCY must be >= 1")
	}
	if cfg.Checker.RequestTimeout <= 0 {
		return cfg, errors.New("REQUEST_TIMEOUT must be a positive duration")
	}
	if cfg.Checker.UserAgent == "" {
		return cfg, errors.New("USER_AGENT must not be empty")
	}
	if cfg.Checker.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	switch cfg.Storage.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return cfg, errors.New("DB_DSN must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Bot.PollTimeout <= 0 {
		return cfg, errors.New("BOT_POLL_TIMEOUT must be a positive duration")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be a positive duration")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// lookup returns the trimmed value of k; ok is false when unset or blank.
func lookup(k string) (v string, ok bool) {
	v = strings.TrimSpace(os.Getenv(k))
	return v, v != ""
}

// parseEnv parses k with parse, keeping def when unset or malformed.
func parseEnv[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := lookup(k)
	if !ok {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

// getenv returns k verbatim; validation decides what blank means.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int { return parseEnv(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return parseEnv(k, def, time.ParseDuration) }

func getfloat(k string, def float64) float64 {
	return parseEnv(k, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func getbool(k string, def bool) bool {
	return parseEnv(k, def, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, errors.New("not a boolean")
	})
}

// splitCSV splits a comma list, dropping blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath yields "/" or "/x/y" without a trailing slash.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
