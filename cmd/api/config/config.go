package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every runtime knob for the API process. Values come from
// the environment with deployment defaults baked in.
type Config struct {
	Port           string
	AllowedOrigins string

	GenAIAPIKey string

	RedisAddr     string
	RedisPassword string

	VectorStoreURL    string
	VectorStoreAPIKey string
	CollectionName    string

	DocumentBucket string

	ChunkSize        int
	ChunkOverlap     int
	MaxDocuments     int
	StreamSessionTTL time.Duration
	SignedURLTTL     time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              envOr("PORT", "3000"),
		AllowedOrigins:    envOr("ALLOWED_ORIGINS", "http://localhost:5173"),
		GenAIAPIKey:       os.Getenv("GOOGLE_AI_STUDIO_API_KEY"),
		RedisAddr:         envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		VectorStoreURL:    os.Getenv("VECTOR_STORE_URL"),
		VectorStoreAPIKey: os.Getenv("VECTOR_STORE_API_KEY"),
		CollectionName:    envOr("VECTOR_COLLECTION_NAME", "documents"),
		DocumentBucket:    envOr("DOCUMENT_BUCKET", "user-docs"),
		ChunkSize:         envIntOr("CHUNK_SIZE", 1000),
		ChunkOverlap:      envIntOr("CHUNK_OVERLAP", 200),
		MaxDocuments:      envIntOr("MAX_DOCUMENTS_PER_CHAT", 5),
		StreamSessionTTL:  time.Duration(envIntOr("STREAM_SESSION_TTL_SECONDS", 3600)) * time.Second,
		SignedURLTTL:      time.Duration(envIntOr("SIGNED_URL_TTL_SECONDS", 86400)) * time.Second,
	}

	if cfg.GenAIAPIKey == "" {
		return nil, fmt.Errorf("GOOGLE_AI_STUDIO_API_KEY is not set")
	}
	if cfg.VectorStoreURL == "" {
		return nil, fmt.Errorf("VECTOR_STORE_URL is not set")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
