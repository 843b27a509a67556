package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	GeminiAPIKeys    []string
	GeminiModel      string
	GeminiFallback   string
	GeminiBaseURL    string
	MaxUsagePerKey   int
	CredentialCache  string
	WebhookSecret    string
	CheckoutBaseURL  string
	UpgradeURL       string
	AllowedOrigins   []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	RateLimitPerMin    int
	RateLimitWindow    time.Duration
	GenerateMaxRetries int
	GenerateBaseDelay  time.Duration
	TrackerQueueSize   int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		GeminiAPIKeys:    loadAPIKeys(),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiFallback:   getEnv("GEMINI_FALLBACK_MODEL", "gemini-2.0-flash-lite"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		MaxUsagePerKey:   getEnvInt("GEMINI_MAX_USAGE_PER_KEY", 50),
		CredentialCache:  getEnv("CREDENTIAL_CACHE_PATH", ".cache/credentials"),
		WebhookSecret:    os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		CheckoutBaseURL:  getEnv("CHECKOUT_BASE_URL", "https://pay.example.com/checkout"),
		UpgradeURL:       getEnv("UPGRADE_URL", "https://app.example.com/pricing"),
		AllowedOrigins:   splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),

		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		RateLimitWindow:    time.Second * time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)),
		GenerateMaxRetries: getEnvInt("GENERATE_MAX_ATTEMPTS", 3),
		GenerateBaseDelay:  time.Millisecond * time.Duration(getEnvInt("GENERATE_BASE_DELAY_MS", 500)),
		TrackerQueueSize:   getEnvInt("USAGE_TRACKER_QUEUE", 256),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// loadAPIKeys reads the ordered credential list from GEMINI_API_KEY_1..N.
// When no numbered entry exists it falls back to the single GEMINI_API_KEY.
func loadAPIKeys() []string {
	var keys []string
	for i := 1; ; i++ {
		v := strings.TrimSpace(os.Getenv(fmt.Sprintf("GEMINI_API_KEY_%d", i)))
		if v == "" {
			break
		}
		keys = append(keys, v)
	}
	if len(keys) == 0 {
		if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
