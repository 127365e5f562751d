package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment        string
	HTTPPort           string
	PublicOrigin       string
	RedditClientID     string
	RedditClientSecret string
	RedditAuthURL      string
	RedditTokenURL     string
	RedditAPIBaseURL   string
	RedditRedirectURI  string
	RedditScopes       []string
	UserAgent          string
	SessionKey         []byte
	SessionTTL         time.Duration
	RefreshSkew        time.Duration
	UpstreamTimeout    time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	ReadRateRPM        int
	MutateRateRPM      int
	ServiceName        string
	TelemetryEndpoint  string
	TelemetryInsecure  bool
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	clientID := strings.TrimSpace(os.Getenv("REDDIT_CLIENT_ID"))
	if clientID == "" {
		return Config{}, fmt.Errorf("REDDIT_CLIENT_ID is required")
	}
	clientSecret := strings.TrimSpace(os.Getenv("REDDIT_CLIENT_SECRET"))
	if clientSecret == "" {
		return Config{}, fmt.Errorf("REDDIT_CLIENT_SECRET is required")
	}
	keyRaw := strings.TrimSpace(os.Getenv("SESSION_KEY"))
	if keyRaw == "" {
		return Config{}, fmt.Errorf("SESSION_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(keyRaw)
	if err != nil {
		return Config{}, fmt.Errorf("SESSION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return Config{}, fmt.Errorf("SESSION_KEY must decode to 32 bytes, got %d", len(key))
	}

	origin := strings.TrimRight(getEnv("PUBLIC_ORIGIN", "http://localhost:8080"), "/")

	cfg := Config{
		Environment:        getEnv("APP_ENV", "development"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		PublicOrigin:       origin,
		RedditClientID:     clientID,
		RedditClientSecret: clientSecret,
		RedditAuthURL:      getEnv("REDDIT_AUTH_URL", "https://www.reddit.com/api/v1/authorize"),
		RedditTokenURL:     getEnv("REDDIT_TOKEN_URL", "https://www.reddit.com/api/v1/access_token"),
		RedditAPIBaseURL:   strings.TrimRight(getEnv("REDDIT_API_BASE_URL", "https://oauth.reddit.com"), "/"),
		RedditRedirectURI:  getEnv("REDDIT_REDIRECT_URI", origin+"/auth/callback"),
		RedditScopes:       getList("REDDIT_SCOPES", []string{"identity", "read", "vote", "history"}),
		UserAgent:          getEnv("USER_AGENT", "web:lurkd:v1.0.0"),
		SessionKey:         key,
		SessionTTL:         getDuration("SESSION_TTL", 30*24*time.Hour),
		RefreshSkew:        getDuration("REFRESH_SKEW", time.Minute),
		UpstreamTimeout:    getDuration("UPSTREAM_TIMEOUT", 12*time.Second),
		RedisAddr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getInt("REDIS_DB", 0),
		ReadRateRPM:        getInt("READ_RATE_RPM", 600),
		MutateRateRPM:      getInt("MUTATE_RATE_RPM", 60),
		ServiceName:        getEnv("SERVICE_NAME", "lurkd"),
		TelemetryEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{origin}),
		CORSAllowedMethods: getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders: getList("CORS_ALLOWED_HEADERS", []string{"Content-Type"}),
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
