package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr     string
	DBPath   string
	LogDir   string
	LogLevel string
	TokenTTL time.Duration

	// Bootstrap admin provisioned by the setup command.
	BootstrapAdmin    string
	BootstrapEmail    string
	BootstrapPassword string

	Version   string
	Commit    string
	BuildTime string
}

func Load() Config {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	addr := envString("CONNECTLY_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	return Config{
		Addr:              addr,
		DBPath:            envString("CONNECTLY_DB", "connectly.db"),
		LogDir:            envString("CONNECTLY_LOG_DIR", "logs"),
		LogLevel:          envString("CONNECTLY_LOG_LEVEL", "info"),
		TokenTTL:          envDuration("CONNECTLY_TOKEN_TTL", 24*time.Hour),
		BootstrapAdmin:    envString("CONNECTLY_BOOTSTRAP_ADMIN", "admin"),
		BootstrapEmail:    envString("CONNECTLY_BOOTSTRAP_EMAIL", "admin@example.com"),
		BootstrapPassword: envString("CONNECTLY_BOOTSTRAP_PASSWORD", ""),
	}
}

// LogFile is the path of the durable event log sink.
func (c Config) LogFile() string {
	return filepath.Join(c.LogDir, "api.log")
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
