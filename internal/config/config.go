package config

import (
	"os"
	"strconv"
	"time"

	"github.com/seahkrah/SmartAttend-sub012/pkg/database"
)

// Config smartattend-audit (HTTP API) configuration.
type Config struct {
	HTTP struct {
		Addr string
	}
	Database database.Config
	Redis    struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	Session  SessionConfig
	Incident IncidentConfig
	Verify   VerifyConfig
}

// SessionConfig session-token lookup settings.
type SessionConfig struct {
	KeyPrefix string        // redis key prefix for session tokens
	TTL       time.Duration // sliding session lifetime
}

// IncidentConfig security-incident webhook settings.
// Integrity and immutability violations are escalated here, not just logged.
type IncidentConfig struct {
	WebhookURL string // empty disables escalation (logged at error level only)
	APIKey     string
	Timeout    time.Duration
}

// VerifyConfig scheduled integrity sweep settings.
type VerifyConfig struct {
	Enabled  bool
	Interval time.Duration
	Batch    int // records re-checked per sweep
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8086")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "smartattend")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Session.KeyPrefix = getEnv("SESSION_KEY_PREFIX", "smartattend:session:")
	cfg.Session.TTL = parseDuration(getEnv("SESSION_TTL", "12h"), 12*time.Hour)

	cfg.Incident.WebhookURL = getEnv("INCIDENT_WEBHOOK_URL", "")
	cfg.Incident.APIKey = getEnv("INCIDENT_WEBHOOK_API_KEY", "")
	cfg.Incident.Timeout = parseDuration(getEnv("INCIDENT_WEBHOOK_TIMEOUT", "10s"), 10*time.Second)

	cfg.Verify.Enabled = getEnv("VERIFY_SWEEP_ENABLED", "true") == "true"
	cfg.Verify.Interval = parseDuration(getEnv("VERIFY_SWEEP_INTERVAL", "1h"), time.Hour)
	cfg.Verify.Batch = parseInt(getEnv("VERIFY_SWEEP_BATCH", "500"), 500)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
