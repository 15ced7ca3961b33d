// Package config loads service configuration from the environment. A .env
// file in the working directory is read first (godotenv) so local runs match
// deployed ones. Misconfiguration is fatal: the process exits 1 before any
// component starts.
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// requiredTimezone pins the trading calendar. Every timestamp, candle bucket,
// and session boundary assumes IST; running anywhere else corrupts data.
const requiredTimezone = "Asia/Kolkata"

// Config holds all service configuration.
type Config struct {
	// Broker credentials
	BrokerAPIKey     string
	BrokerClientCode string
	BrokerPIN        string
	BrokerTOTPSecret string
	// Optional pre-issued tokens; when set the login flow is skipped.
	BrokerAccessToken string
	BrokerFeedToken   string

	// HTTP surface
	Host     string
	Port     int
	APIToken string // bearer token for /api routes; empty disables the gate

	// Infrastructure
	CacheURL     string // redis URL; empty selects the in-memory cache
	CandleDBPath string // sqlite journal; empty disables journaling
	MetricsAddr  string // prometheus exposition; empty disables the listener

	// Calendar
	EnableScheduler bool
	HolidayFile     string
}

// Load reads the .env file (if present) and the environment. Missing
// credentials or a wrong MARKET_TIMEZONE are fatal.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}

	if tz := getEnv("MARKET_TIMEZONE", requiredTimezone); tz != requiredTimezone {
		log.Fatalf("[config] MARKET_TIMEZONE must be %q, got %q", requiredTimezone, tz)
	}

	return &Config{
		BrokerAPIKey:      mustEnv("BROKER_API_KEY"),
		BrokerClientCode:  mustEnv("BROKER_CLIENT_CODE"),
		BrokerPIN:         mustEnv("BROKER_PIN"),
		BrokerTOTPSecret:  mustEnv("BROKER_TOTP_SECRET"),
		BrokerAccessToken: getEnv("BROKER_ACCESS_TOKEN", ""),
		BrokerFeedToken:   getEnv("BROKER_FEED_TOKEN", ""),

		Host:     getEnv("HOST", "0.0.0.0"),
		Port:     getEnvInt("PORT", 8000),
		APIToken: getEnv("API_TOKEN", ""),

		CacheURL:     getEnv("CACHE_URL", ""),
		CandleDBPath: getEnv("CANDLE_DB_PATH", "data/candles.db"),
		MetricsAddr:  getEnv("METRICS_ADDR", ":9090"),

		EnableScheduler: getEnvBool("ENABLE_SCHEDULER", true),
		HolidayFile:     getEnv("HOLIDAY_FILE", ""),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("[config] %s must be an integer, got %q", key, v)
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("[config] %s must be a boolean, got %q", key, v)
	}
	return b
}
