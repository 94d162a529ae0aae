// Package config loads relay settings from defaults, an optional config
// file, .env files and WATCH_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/watch-party/relay/internal/logging"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "WATCH"

// Config holds the server configuration.
type Config struct {
	// Server
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	AllowedOrigins  []string

	// Journal
	DBPath           string
	JournalEnabled   bool
	JournalRetention time.Duration

	// Logging
	Log logging.Config
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.JournalEnabled && c.DBPath == "" {
		return fmt.Errorf("journal enabled but db path is empty")
	}
	if c.JournalRetention < 0 {
		return fmt.Errorf("journal retention must not be negative")
	}
	return nil
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("db.path", "./data/relay.db")
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.retention", 24*time.Hour)

	defaults := logging.DefaultConfig()
	v.SetDefault("log.level", defaults.Level)
	v.SetDefault("log.format", defaults.Format)
	v.SetDefault("log.output", defaults.Output)
	v.SetDefault("log.no_color", defaults.NoColor)
}

// Load builds a Config in order of precedence:
// 1. Flags bound on v
// 2. Environment variables (WATCH_SERVER_PORT, ...)
// 3. .env files
// 4. Config file
// 5. Defaults
func Load(v *viper.Viper, configFile string) (*Config, error) {
	loadEnvFiles()

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("relay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		Host:            v.GetString("server.host"),
		Port:            v.GetInt("server.port"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		AllowedOrigins:  v.GetStringSlice("server.allowed_origins"),

		DBPath:           v.GetString("db.path"),
		JournalEnabled:   v.GetBool("journal.enabled"),
		JournalRetention: v.GetDuration("journal.retention"),

		Log: logging.Config{
			Level:   v.GetString("log.level"),
			Format:  v.GetString("log.format"),
			Output:  v.GetString("log.output"),
			NoColor: v.GetBool("log.no_color"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env then .env.local. Variables already set win.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}
