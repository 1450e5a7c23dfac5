package config

import (
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Config holds all configuration for one pipeline run. It is loaded once and
// passed into components explicitly; nothing reads the environment after
// startup, so concurrent runs with different settings cannot interfere.
type Config struct {
	AppEnv string

	DataDir string
	Years   []int

	TreeMaxDepth    int
	RandomSeed      int64
	MinRowsPerYear  int // 0 derives schema length + 1
	MaxDropFraction float64
	AmenityVocab    []string

	DBPath   string // empty disables run persistence
	DBDriver string

	RedisAddr string // empty disables vector memoization
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	return &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		DataDir:         getEnv("DATA_DIR", "./data"),
		Years:           parseYears(getEnv("YEARS", "2021,2022,2023")),
		TreeMaxDepth:    getEnvInt("TREE_MAX_DEPTH", 5),
		RandomSeed:      int64(getEnvInt("RANDOM_SEED", 42)),
		MinRowsPerYear:  getEnvInt("MIN_ROWS_PER_YEAR", 0),
		MaxDropFraction: getEnvFloat("MAX_DROP_FRACTION", 0.5),
		AmenityVocab:    parseList(getEnv("AMENITY_VOCABULARY", "")),
		DBPath:          getEnv("DB_PATH", "./data/staylens.db"),
		DBDriver:        getEnv("DB_DRIVER", "sqlite3"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
	}
}

// NewLogger creates a new Zap logger based on the config.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.AppEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseYears(s string) []int {
	var out []int
	for _, item := range parseList(s) {
		if y, err := strconv.Atoi(item); err == nil {
			out = append(out, y)
		}
	}
	return out
}
