// Package config loads runtime configuration for both the API and worker
// processes from environment variables, with an optional YAML file to seed
// defaults for deployments that prefer a checked-in config over a wall of
// env vars.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything both processes need. Not every field is used by
// every process; cmd/api and cmd/worker each read the subset they need.
type Config struct {
	DBURI                string `yaml:"db_uri"`
	RedisURI             string `yaml:"redis_uri"`
	JWTSecretPaissahouse string `yaml:"jwt_secret_paissahouse"`
	SentryDSN            string `yaml:"sentry_dsn"`
	SentryEnv            string `yaml:"sentry_env"`
	LogLevel             string `yaml:"log_level"`
	GameDataDir          string `yaml:"gamedata_dir"`
	Port                 string `yaml:"port"`
	IngestRateRPS        float64       `yaml:"ingest_rate_rps"`
	IngestRateBurst      int           `yaml:"ingest_rate_burst"`
	WorkerErrorBackoff   time.Duration `yaml:"-"`
}

// Load reads an optional YAML file at path (ignored if path is empty or the
// file doesn't exist) to seed defaults, then overlays environment variables,
// which always win: a config file is a convenience, never the source of
// truth in production.
func Load(path string) (*Config, error) {
	cfg := &Config{
		LogLevel:           "info",
		Port:               "8080",
		IngestRateRPS:      20,
		IngestRateBurst:    40,
		WorkerErrorBackoff: 10 * time.Second,
	}

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.DBURI = getEnvString("DB_URI", cfg.DBURI)
	cfg.RedisURI = getEnvString("REDIS_URI", cfg.RedisURI)
	cfg.JWTSecretPaissahouse = getEnvString("JWT_SECRET_PAISSAHOUSE", cfg.JWTSecretPaissahouse)
	cfg.SentryDSN = getEnvString("SENTRY_DSN", cfg.SentryDSN)
	cfg.SentryEnv = getEnvString("SENTRY_ENV", cfg.SentryEnv)
	cfg.LogLevel = getEnvString("LOGLEVEL", cfg.LogLevel)
	cfg.GameDataDir = getEnvString("GAMEDATA_DIR", cfg.GameDataDir)
	cfg.Port = getEnvString("PORT", cfg.Port)
	cfg.IngestRateRPS = getEnvFloat("INGEST_RATE_RPS", cfg.IngestRateRPS)
	cfg.IngestRateBurst = getEnvInt("INGEST_RATE_BURST", cfg.IngestRateBurst)
	cfg.WorkerErrorBackoff = time.Duration(getEnvInt("WORKER_ERROR_BACKOFF_MS", int(cfg.WorkerErrorBackoff/time.Millisecond))) * time.Millisecond

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return defaultVal
}
