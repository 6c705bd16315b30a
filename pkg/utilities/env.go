package utilities

import (
	"os"
	"strconv"
	"time"
)

// GetEnv returns the value of key or def when the variable is unset.
func GetEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// GetEnvInt parses key as an int, falling back to def on absence or parse errors.
func GetEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

// GetEnvFloat parses key as a float64, falling back to def.
func GetEnvFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

// GetEnvDuration parses key with time.ParseDuration, falling back to def.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
