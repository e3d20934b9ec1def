// Package config reads runtime configuration from the environment.
package config

import (
	"os"
	"strings"
)

// Config holds connection and session parameters for the voice subsystem
type Config struct {
	ConversationURL string
	MatchmakingURL  string
	Language        string
	Topic           string
	Hashtags        []string
	JWTSecret       string
	GeminiAPIKey    string
	DevListenAddr   string
}

// Load reads configuration from environment variables with development
// defaults. Call godotenv.Load beforehand to pick up a .env file.
func Load() Config {
	cfg := Config{
		ConversationURL: getEnv("VORTEX_CONVERSATION_URL", "ws://localhost:8080/ws/conversation"),
		MatchmakingURL:  getEnv("VORTEX_MATCHMAKING_URL", "ws://localhost:8080/ws/matchmaking"),
		Language:        getEnv("VORTEX_LANGUAGE", "en-US"),
		Topic:           os.Getenv("VORTEX_TOPIC"),
		JWTSecret:       getEnv("VORTEX_JWT_SECRET", "dev-secret"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		DevListenAddr:   getEnv("VORTEX_DEV_ADDR", ":8080"),
	}

	if raw := os.Getenv("VORTEX_HASHTAGS"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				cfg.Hashtags = append(cfg.Hashtags, tag)
			}
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
