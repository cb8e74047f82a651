package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port         string
	BackendURL   string
	BackendToken string
	// Optional. Enables the persistent address store when set.
	DatabaseURL string
	// Optional. Route events go through Redis Pub/Sub when set.
	RedisURL   string
	PolicyPath string
	SessionID  string
	Policy     Policy
}

// Get returns the environment value for key, or fallback when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load reads .env (when present), the environment and the policy file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg := &Config{
		Port:         Get("PORT", "8080"),
		BackendURL:   strings.TrimRight(Get("BACKEND_URL", ""), "/"),
		BackendToken: os.Getenv("BACKEND_TOKEN"),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:     strings.TrimSpace(os.Getenv("REDIS_URL")),
		PolicyPath:   Get("POLICY_PATH", "config/policy.yaml"),
		SessionID:    os.Getenv("SESSION_ID"),
	}

	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("load config: BACKEND_URL is required")
	}

	policy, err := LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Policy = policy

	return cfg, nil
}
