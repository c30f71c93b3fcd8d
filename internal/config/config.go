package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the API process.
// Values are primarily loaded from environment variables with sane
// defaults so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr        string
	RedisPassword    string
	RedisRoutePrefix string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	PlatformFeeRate   float64
	SweepInterval     time.Duration
	AutoCompleteAfter time.Duration

	RateServiceURL    string
	DefaultRatePerTon int64
	WebhookURL        string

	AdminIDs []string

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:          ":8080",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		RedisRoutePrefix:  "routes",
		KafkaTopic:        "booking-events",
		PlatformFeeRate:   0.05,
		SweepInterval:     time.Minute,
		AutoCompleteAfter: 48 * time.Hour,
		DefaultRatePerTon: 1500,
		LogLevel:          "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisRoutePrefix, "REDIS_ROUTE_PREFIX")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setFloatFromEnv(&cfg.PlatformFeeRate, "PLATFORM_FEE_RATE", &errs)
	setDurationFromEnv(&cfg.SweepInterval, "SWEEP_INTERVAL", &errs)
	setDurationFromEnv(&cfg.AutoCompleteAfter, "BOOKING_AUTOCOMPLETE_AFTER", &errs)

	setStringFromEnv(&cfg.RateServiceURL, "RATE_SERVICE_URL")
	setInt64FromEnv(&cfg.DefaultRatePerTon, "DEFAULT_RATE_PER_TON", &errs)
	setStringFromEnv(&cfg.WebhookURL, "NOTIFY_WEBHOOK_URL")

	if admins := os.Getenv("ADMIN_IDS"); admins != "" {
		cfg.AdminIDs = splitAndTrim(admins)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.PlatformFeeRate < 0 || cfg.PlatformFeeRate >= 1 {
		errs = append(errs, fmt.Errorf("PLATFORM_FEE_RATE must be in [0,1)"))
	}
	if cfg.AutoCompleteAfter <= 0 {
		errs = append(errs, fmt.Errorf("BOOKING_AUTOCOMPLETE_AFTER must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// IsAdmin reports whether the id is in the configured admin allowlist.
func (c ServerConfig) IsAdmin(id string) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setInt64FromEnv(target *int64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
