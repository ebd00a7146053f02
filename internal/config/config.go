// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	MinAttempts = 1
	MaxAttempts = 10
)

// Config holds every tunable of the sync core.
type Config struct {
	DataDir        string
	ListenAddr     string
	RemoteBaseURL  string
	AnchorURL      string
	SyncInterval   time.Duration
	RequestTimeout time.Duration
	GraceWindow    time.Duration
	DebounceWindow time.Duration
	MaxAttempts    int
	LogLevel       string
}

// Load reads configuration from the environment, layering an optional .env
// file underneath real environment variables.
func Load() *Config {
	_ = godotenv.Load()

	attempts := getEnvInt("SYNC_MAX_ATTEMPTS", 5)
	if attempts > MaxAttempts {
		attempts = MaxAttempts
	} else if attempts < MinAttempts {
		attempts = MinAttempts
	}

	return &Config{
		DataDir:        getEnv("DATA_DIR", "./data"),
		ListenAddr:     getEnv("LISTEN_ADDR", "localhost:8090"),
		RemoteBaseURL:  getEnv("REMOTE_BASE_URL", "http://localhost:8080/api/v1"),
		AnchorURL:      getEnv("ANCHOR_URL", ""),
		SyncInterval:   getEnvDuration("SYNC_INTERVAL_SEC", 30) * time.Second,
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT_SEC", 15) * time.Second,
		GraceWindow:    getEnvDuration("SYNC_GRACE_SEC", 60) * time.Second,
		DebounceWindow: getEnvDuration("NET_DEBOUNCE_MS", 2000) * time.Millisecond,
		MaxAttempts:    attempts,
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback))
}
