package util

import (
	"os"
	"time"
)

// GetEnvOrDefault returns the environment variable value if set, otherwise the default value
func GetEnvOrDefault(env, def string) string {
	if val := os.Getenv(env); val != "" {
		return val
	}
	return def
}

// GetEnvDurationOrDefault parses env as a time.Duration ("5s", "1m"). An
// unset or unparsable value yields def.
func GetEnvDurationOrDefault(env string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(env))
	if err != nil {
		return def
	}
	return d
}
