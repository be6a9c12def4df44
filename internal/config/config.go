// Package config loads service configuration from the environment.
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything the service needs at startup.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// DatabaseURL selects the PostgreSQL backend when set.
	DatabaseURL string
	// DBPath is the SQLite file used when DatabaseURL is empty.
	DBPath string
	// PollMinutes overrides the stored polling interval at startup when > 0.
	PollMinutes int
}

// Load reads .env if present, then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env: %v", err)
	}

	cfg := Config{
		Addr:        getenv("SKIMMER_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getenv("SKIMMER_DB_PATH", "skimmer.db"),
	}
	if v := os.Getenv("SKIMMER_POLL_MINUTES"); v != "" {
		if mins, err := strconv.Atoi(v); err == nil && mins > 0 {
			cfg.PollMinutes = mins
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
