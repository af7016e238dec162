package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SourceFixtures = "fixtures"
	SourcePostgres = "postgres"
)

type Config struct {
	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	LoopDuration  time.Duration
	TickInterval  time.Duration
	FrameInterval time.Duration
	FrameEvery    int
	AlertLabel    string
	GroupID       string

	JourneySource  string
	FixturesPath   string
	DatabaseURL    string
	ReplayDatabase string

	MetricsAddr string
	LogLevel    string
	LogFormat   string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "replay")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	var err error
	if cfg.LoopDuration, err = millis("REPLAY_LOOP_MS", 48000); err != nil {
		return nil, err
	}
	if cfg.TickInterval, err = millis("REPLAY_TICK_MS", 180); err != nil {
		return nil, err
	}
	if cfg.FrameInterval, err = millis("FRAME_INTERVAL_MS", 16); err != nil {
		return nil, err
	}
	if v := os.Getenv("FRAME_EVERY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid FRAME_EVERY: %q", v)
		}
		cfg.FrameEvery = n
	} else {
		cfg.FrameEvery = 3
	}

	cfg.AlertLabel = getenvDefault("ALERT_LABEL", "sudden halt")
	cfg.GroupID = strings.TrimSpace(os.Getenv("GROUP_ID"))

	cfg.JourneySource = strings.ToLower(getenvDefault("JOURNEY_SOURCE", SourceFixtures))
	cfg.FixturesPath = os.Getenv("FIXTURES_PATH")
	switch cfg.JourneySource {
	case SourceFixtures:
	case SourcePostgres:
		dsn, err := databaseURL()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
		cfg.ReplayDatabase = os.Getenv("REPLAY_DATABASE")
	default:
		return nil, fmt.Errorf("invalid JOURNEY_SOURCE: %q", cfg.JourneySource)
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "json"))
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.LogFormat)
	}

	return cfg, nil
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG* vars.
func databaseURL() (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	if db == "" {
		return "", errors.New("PGDATABASE or DATABASE_URL must be set when JOURNEY_SOURCE=postgres")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

func millis(key string, def int) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * time.Millisecond, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
