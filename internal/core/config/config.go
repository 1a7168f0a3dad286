package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string
	JWTSecret   string
	TokenTTL    time.Duration
	WebhookURL  string
	Env         string
}

// LoadConfig reads the .env file (absent in production, which is fine)
// and resolves every setting from the environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on system env variables")
	}

	ttl := 24 * time.Hour
	if raw := getEnv("TOKEN_TTL", ""); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			ttl = parsed
		} else {
			slog.Warn("invalid TOKEN_TTL, keeping default", "value", raw)
		}
	}

	return &Config{
		Port:        getEnv("PORT", "3000"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		TokenTTL:    ttl,
		WebhookURL:  getEnv("WEBHOOK_URL", ""),
		Env:         getEnv("ENV", "development"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
