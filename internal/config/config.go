package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every process-wide setting. Per spec §1 the engine is a
// single-binary process; there is no per-venue process split the way the
// teacher ran one binary per sport.
type Config struct {
	// Direct venue
	DirectMode    string // "demo" or "prod"
	DirectBaseURL string
	DirectWSURL   string
	DirectKeyID   string
	DirectKeyFile string // RSA PEM private key, PSS signing

	// Proxied venue
	ProxiedBaseURL   string
	ProxiedWSURL     string
	ProxiedAPIKey    string
	ProxiedAPISecret string

	// Event provider
	EventProviderBaseURL string
	EventProviderAPIKey  string

	// Risk
	RiskLimitsPath string

	// Position management
	ExitCheckInterval  time.Duration
	StalenessTTL       time.Duration
	MaxEventExposureFraction float64

	// Persistence
	SQLitePath string

	// Telemetry
	LogLevel   string
	MetricsAddr string

	Account string
}

func Load() *Config {
	_ = godotenv.Load()

	mode := envStr("DIRECT_MODE", "prod")

	var keyID, keyFile, baseURL, wsURL string
	if mode == "prod" {
		keyID = envStr("DIRECT_PROD_KEYID", "")
		keyFile = envStr("DIRECT_PROD_KEYFILE", "")
		baseURL = envStr("DIRECT_BASE_URL", "https://api.elections.kalshi.com")
		wsURL = envStr("DIRECT_WS_URL", "wss://api.elections.kalshi.com/trade-api/ws/v2")
	} else {
		keyID = envStr("DIRECT_DEMO_KEYID", "")
		keyFile = envStr("DIRECT_DEMO_KEYFILE", "")
		baseURL = envStr("DIRECT_BASE_URL", "https://demo-api.kalshi.co")
		wsURL = envStr("DIRECT_WS_URL", "wss://demo-api.kalshi.co/trade-api/ws/v2")
	}

	return &Config{
		DirectMode:    mode,
		DirectBaseURL: baseURL,
		DirectWSURL:   wsURL,
		DirectKeyID:   keyID,
		DirectKeyFile: keyFile,

		ProxiedBaseURL:   envStr("PROXIED_BASE_URL", "https://clob.proxied-venue.example"),
		ProxiedWSURL:     envStr("PROXIED_WS_URL", "wss://ws.proxied-venue.example"),
		ProxiedAPIKey:    envStr("PROXIED_API_KEY", ""),
		ProxiedAPISecret: envStr("PROXIED_API_SECRET", ""),

		EventProviderBaseURL: envStr("EVENT_PROVIDER_BASE_URL", ""),
		EventProviderAPIKey:  envStr("EVENT_PROVIDER_API_KEY", ""),

		RiskLimitsPath: envStr("RISK_LIMITS_PATH", "internal/config/risk_limits.yaml"),

		ExitCheckInterval:        time.Duration(envInt("EXIT_CHECK_INTERVAL_MS", 500)) * time.Millisecond,
		StalenessTTL:             time.Duration(envInt("STALENESS_TTL_MS", 2000)) * time.Millisecond,
		MaxEventExposureFraction: envFloat("MAX_EVENT_EXPOSURE_FRACTION", 0.10),

		SQLitePath: envStr("SQLITE_PATH", "data/engine.db"),

		LogLevel:    envStr("LOG_LEVEL", "info"),
		MetricsAddr: envStr("METRICS_ADDR", ":9400"),

		Account: envStr("BANKROLL_ACCOUNT", "main"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
