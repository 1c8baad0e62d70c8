package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerAddr   string
	TrustProxy   bool
	MaxBodyBytes int64 // bytes for JSON request bodies inspected by the pipeline

	// Origin reputation
	GeoAPIURL         string // base URL of the ip-api.com style lookup service
	GeoTimeout        time.Duration
	GeoCacheSize      int
	HighRiskCountries []string // ISO country codes scored as high risk

	// Rate limiting
	APIRateWindow  time.Duration
	APIRateMax     int
	AuthRateWindow time.Duration
	AuthRateMax    int
	AuthPaths      []string // path prefixes that get the stricter auth limiter
	ExemptPaths    []string // paths that skip rate limiting and scoring entirely

	// Detection
	BypassHeader   string // trusted internal test-marker header
	RulesPath      string // optional YAML overrides for the heuristic tables
	FormFillFastMs int64  // "form filled too fast" threshold

	// Ledger
	LedgerCapacity int
	StoreBackend   string // file or redis
	MetricsFile    string
	RedisAddr      string
	RedisKey       string

	// Detection event fan-out
	Outputs []string // enabled sinks: log, kafka, postgres, nats
	PGDSN   string

	// Admin API
	AdminAPIKey string
}

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}

func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getStringSlice(k, def string) []string {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func Load() Config {
	return Config{
		ServerAddr:   getOr("SERVER_ADDR", ":19891"),
		TrustProxy:   getBool("TRUST_PROXY", false),
		MaxBodyBytes: getInt64("MAX_BODY_BYTES", 1<<20), // 1 MiB default

		GeoAPIURL:         getOr("GEO_API_URL", "http://ip-api.com/json"),
		GeoTimeout:        getDuration("GEO_TIMEOUT", 3*time.Second),
		GeoCacheSize:      getInt("GEO_CACHE_SIZE", 4096),
		HighRiskCountries: getStringSlice("HIGH_RISK_COUNTRIES", "CN,RU,KP,IR,VN,BD,PK,ID"),

		APIRateWindow:  getDuration("API_RATE_WINDOW", 2*time.Minute),
		APIRateMax:     getInt("API_RATE_MAX", 5),
		AuthRateWindow: getDuration("AUTH_RATE_WINDOW", 15*time.Minute),
		AuthRateMax:    getInt("AUTH_RATE_MAX", 2),
		AuthPaths:      getStringSlice("AUTH_PATHS", "/api/auth"),
		ExemptPaths:    getStringSlice("EXEMPT_PATHS", "/health,/api/admin/bot-metrics/ingest"),

		BypassHeader:   getOr("BYPASS_HEADER", "X-Nextbuy-Test-Request"),
		RulesPath:      getOr("RULES_PATH", ""),
		FormFillFastMs: getInt64("BEHAVIOR_FORM_FILL_MS", 1000),

		LedgerCapacity: getInt("LEDGER_CAPACITY", 1000),
		StoreBackend:   getOr("STORE_BACKEND", "file"),
		MetricsFile:    getOr("METRICS_FILE", "logs/bot_metrics.json"),
		RedisAddr:      getOr("REDIS_ADDR", "localhost:6379"),
		RedisKey:       getOr("REDIS_KEY", "shield:bot_metrics"),

		Outputs: getStringSlice("OUTPUTS", "log"),
		PGDSN:   getOr("PG_DSN", ""),

		AdminAPIKey: getOr("ADMIN_API_KEY", ""),
	}
}
