package config

import (
	"os"
	"strconv"
	"time"
)

const (
	DefaultNativeryScriptURL = "https://cdn.nativery.com/widget/js/natamp.js"
	DefaultSSPScriptURL      = "https://ssp.imedia.cz/static/js/ssp.js"
	DefaultSSPEndpoint       = "https://ssp.imedia.cz/v1/ads"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	RedisAddr     string
	ClickHouseDSN string
	PostgresDSN   string
	ServiceName   string
	// Vendor integration
	NativeryScriptURL  string
	SSPScriptURL       string
	SSPEndpoint        string
	VendorTimeout      time.Duration
	ScriptFetchTimeout time.Duration
	ScriptCacheTTL     time.Duration
	WidgetStateTTL     time.Duration
	// Host registries
	FrameTTL             time.Duration
	UnitTTL              time.Duration
	AggregationWindow    time.Duration
	DefaultExpectedSlots int
	ReloadInterval       time.Duration
	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// ClickHouse connection pooling configuration
	CHMaxOpenConns    int
	CHMaxIdleConns    int
	CHConnMaxLifetime time.Duration
	CHConnMaxIdleTime time.Duration
	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent. An empty REDIS_ADDR, CLICKHOUSE_DSN or
// POSTGRES_DSN disables that backend.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.RedisAddr = lookupenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = lookupenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.PostgresDSN = lookupenv("POSTGRES_DSN", "")
	cfg.ServiceName = getenv("SERVICE_NAME", "adslot")

	cfg.NativeryScriptURL = getenv("NATIVERY_SCRIPT_URL", DefaultNativeryScriptURL)
	cfg.SSPScriptURL = getenv("SSP_SCRIPT_URL", DefaultSSPScriptURL)
	cfg.SSPEndpoint = getenv("SSP_ENDPOINT", DefaultSSPEndpoint)
	cfg.VendorTimeout = envDuration("VENDOR_TIMEOUT", 800*time.Millisecond)
	cfg.ScriptFetchTimeout = envDuration("SCRIPT_FETCH_TIMEOUT", 2*time.Second)
	cfg.ScriptCacheTTL = envDuration("SCRIPT_CACHE_TTL", time.Hour)
	cfg.WidgetStateTTL = envDuration("WIDGET_STATE_TTL", 30*time.Minute)

	cfg.FrameTTL = envDuration("FRAME_TTL", 10*time.Minute)
	cfg.UnitTTL = envDuration("UNIT_TTL", 5*time.Minute)
	// short enough to stay invisible to the page, long enough for sibling
	// slots issued in the same tick to join
	cfg.AggregationWindow = envDuration("AGGREGATION_WINDOW", 50*time.Millisecond)
	cfg.DefaultExpectedSlots = envInt("DEFAULT_EXPECTED_SLOTS", 0)
	cfg.ReloadInterval = envDuration("RELOAD_INTERVAL", 30*time.Second)

	// Database connection pooling configuration
	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// Slot events arrive in bursts, one per lifecycle call
	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 100)
	cfg.CHMaxIdleConns = envInt("CH_MAX_IDLE_CONNS", 25)
	cfg.CHConnMaxLifetime = envDuration("CH_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.CHConnMaxIdleTime = envDuration("CH_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// Tracing configuration
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// lookupenv is like getenv but keeps an explicitly empty value, which is how
// optional backends are switched off.
func lookupenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
