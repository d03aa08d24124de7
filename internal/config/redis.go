package config

import (
	"os"
	"strconv"
)

// RedisConfig locates the alert stream.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	// Group is the consumer group that persists alerts.
	Group string
	// MaxLen caps the stream length on every publish; zero disables trimming.
	MaxLen int64
}

func GetRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
		Stream:   getEnv("REDIS_STREAM", "rabies_alerts"),
		Group:    getEnv("REDIS_GROUP", "alert_store"),
		MaxLen:   int64(getEnvInt("REDIS_STREAM_MAXLEN", 10000)),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
