package config

import (
	"strings"
	"time"
)

// Config holds every runtime knob the server needs.
type Config struct {
	ListenAddr          string
	MetricsAddr         string
	DatabaseDSN         string
	EarliestAllowedDate time.Time
	DefaultTickers      []string
	RequestTimeout      time.Duration
	RetryBackoff        time.Duration
	LogLevel            string
}

// Load reads the process env (already hydrated by LoadDotEnv) and returns a
// Config with sane classroom defaults where keys are missing.
func Load() Config {
	earliest, err := time.Parse("2006-01-02", getEnv("EARLIEST_ALLOWED_DATE", "2025-01-01"))
	if err != nil {
		earliest = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	tickers := strings.Split(getEnv("DEFAULT_TICKERS", "AAPL,MSFT,GOOGL"), ",")
	for i := range tickers {
		tickers[i] = strings.ToUpper(strings.TrimSpace(tickers[i]))
	}
	return Config{
		ListenAddr:          getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr:         getEnv("METRICS_ADDR", ":9090"),
		DatabaseDSN:         getEnv("DATABASE_DSN", "file:classroomsim.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"),
		EarliestAllowedDate: earliest,
		DefaultTickers:      tickers,
		RequestTimeout:      time.Duration(getEnvInt("REQUEST_TIMEOUT_MS", 5000)) * time.Millisecond,
		RetryBackoff:        time.Duration(getEnvInt("RETRY_BACKOFF_MS", 200)) * time.Millisecond,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}
}
