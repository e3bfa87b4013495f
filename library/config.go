package library

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds process-wide settings. It is loaded once at startup from
// environment variables and treated as immutable.
type Config struct {
	DBPath     string  // LIBRARY_DB
	HTTPAddr   string  // LIBRARY_HTTP_ADDR
	FinePerDay float64 // LIBRARY_FINE_PER_DAY
}

// LoadConfig reads the configuration from the environment, falling back to
// sensible defaults for anything unset.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DBPath:     "library.db",
		HTTPAddr:   ":8080",
		FinePerDay: DefaultFinePerDay,
	}

	if v := os.Getenv("LIBRARY_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LIBRARY_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("LIBRARY_FINE_PER_DAY"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse LIBRARY_FINE_PER_DAY: %w", err)
		}
		if rate <= 0 {
			return nil, fmt.Errorf("LIBRARY_FINE_PER_DAY must be positive, got %s", v)
		}
		cfg.FinePerDay = rate
	}

	return cfg, nil
}
