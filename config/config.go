package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	DatabaseURL    string
	ServiceToken   string
	AllowedOrigins []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Sync service feeding mining sessions and public profiles. Workers are
	// disabled when empty.
	SyncServiceURL     string
	SyncPollInterval   time.Duration
	ProfileSyncTimeout time.Duration

	// Used by the pending-bonus stream to validate query-string tokens.
	AuthServiceURL string

	// Cloudflare R2 leaderboard archive. Disabled when the bucket is empty.
	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2Bucket          string
	CDNBaseURL        string

	LeaderboardRefreshInterval time.Duration
	BurnSweepInterval          time.Duration
	BurnRate                   float64
	BonusPurgeInterval         time.Duration
	PendingPollInterval        time.Duration
	LeaderboardSize            int

	LogLevel      string
	LogFilename   string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func (c *Config) R2Enabled() bool {
	return c.R2Bucket != "" && c.R2AccountID != ""
}

func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.ServiceToken == "" {
		missing = append(missing, "MINING_SERVICE_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.BurnRate < 0 || c.BurnRate > 1 {
		return errors.New("BURN_RATE must be within [0, 1]")
	}
	if c.LeaderboardRefreshInterval <= 0 {
		return errors.New("LEADERBOARD_REFRESH_INTERVAL must be positive")
	}
	if c.LeaderboardSize < 0 {
		return errors.New("LEADERBOARD_SIZE must not be negative")
	}
	return nil
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file is not found
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg := &Config{
		Port:           getEnv("PORT", "5300"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ServiceToken:   os.Getenv("MINING_SERVICE_TOKEN"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		SyncServiceURL:     os.Getenv("SYNC_SERVICE_URL"),
		SyncPollInterval:   getEnvAsDuration("SYNC_POLL_INTERVAL", 10*time.Second),
		ProfileSyncTimeout: getEnvAsDuration("PROFILE_SYNC_TIMEOUT", 30*time.Second),

		AuthServiceURL: os.Getenv("AUTH_SERVICE_URL"),

		R2AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:          os.Getenv("R2_BUCKET_NAME"),
		CDNBaseURL:        os.Getenv("CDN_BASE_URL"),

		LeaderboardRefreshInterval: getEnvAsDuration("LEADERBOARD_REFRESH_INTERVAL", 30*time.Second),
		BurnSweepInterval:          getEnvAsDuration("BURN_SWEEP_INTERVAL", 15*time.Minute),
		BurnRate:                   getEnvAsFloat("BURN_RATE", 0.10),
		BonusPurgeInterval:         getEnvAsDuration("BONUS_PURGE_INTERVAL", time.Hour),
		PendingPollInterval:        getEnvAsDuration("PENDING_POLL_INTERVAL", 5*time.Second),
		LeaderboardSize:            getEnvAsInt("LEADERBOARD_SIZE", 100),

		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		LogFilename:   getEnv("LOG_FILENAME", "logs/mining.log"),
		LogMaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvAsInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvAsBool("LOG_COMPRESS", true),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
