// Package config provides environment-based configuration.
//
// Loads from .env file (godotenv), maps to Config struct via go-simpler/env struct tags.
// Validates timeouts, sizes and rate limits, and requires APP_URL in production.
package config
