/*
Package config loads deployment settings.

PURPOSE:
  One place for everything tunable per deployment: the HTTP port, which
  store backend to use, and the history page size (observed values
  differ between flows, so it must not be a compile-time constant).

SOURCES:
  A .env file (loaded via godotenv when present, never required) and the
  process environment, environment winning. cmd/server layers its
  command-line flags on top of the result.

VARIABLES:
  PORT          HTTP server port            (default 8080)
  DB_DRIVER     "sqlite" or "postgres"      (default sqlite)
  DB_PATH       SQLite database path        (default ledger.db)
  DATABASE_URL  Postgres DSN, required when DB_DRIVER=postgres
  PAGE_SIZE     History page size           (default 10)
*/
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Settings struct {
	Port        int
	DBDriver    string
	DBPath      string
	DatabaseURL string
	PageSize    int
}

func defaults() Settings {
	return Settings{
		Port:     8080,
		DBDriver: "sqlite",
		DBPath:   "ledger.db",
		PageSize: 10,
	}
}

// Load reads .env (if present) and the environment into Settings.
func Load() (Settings, error) {
	// Missing .env is fine; the environment alone is a full config.
	_ = godotenv.Load()

	s := defaults()
	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		s.Port = n
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		s.DBDriver = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		s.DBPath = v
	}
	s.DatabaseURL = os.Getenv("DATABASE_URL")
	if v := os.Getenv("PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return s, fmt.Errorf("invalid PAGE_SIZE %q", v)
		}
		s.PageSize = n
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	switch s.DBDriver {
	case "sqlite":
		if s.DBPath == "" {
			return fmt.Errorf("DB_PATH required for sqlite driver")
		}
	case "postgres":
		if s.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", s.DBDriver)
	}
	return nil
}
