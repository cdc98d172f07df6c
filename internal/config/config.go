// Package config resolves the janitor daemon's runtime settings from CLI
// flags, environment variables, and an optional .env file, in that order of
// precedence. Grounded on the teacher's internal/config/config.go
// environment-variable-with-default idiom, trimmed to the fleet engine's own
// settings instead of MarbleRun/Neo/Supabase specifics.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the daemon's runtime settings, resolved once at startup.
type Config struct {
	ListenAddress string
	Port          int
	Interval      time.Duration
	PolicyPath    string
	DatabaseDSN   string

	DryRun              bool
	Once                bool
	NoAutoPublish       bool
	MaxMPSPerMaintainer int

	LogLevel  string
	LogFormat string
}

// Addr returns the combined host:port the admin API listens on.
func (c *Config) Addr() string {
	if c.Port == 0 {
		return c.ListenAddress
	}
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.Port)
}

// Validate rejects mutually exclusive or out-of-range flag combinations, per
// spec §6's exit-code-1 contract.
func (c *Config) Validate() error {
	if c.Once && c.NoAutoPublish {
		return errors.New("--once and --no-auto-publish are mutually exclusive: --once already skips the ingress loop entirely")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", c.Interval)
	}
	if c.MaxMPSPerMaintainer < 0 {
		return fmt.Errorf("--max-mps-per-maintainer must be non-negative, got %d", c.MaxMPSPerMaintainer)
	}
	return nil
}

// Load parses flags out of args (typically os.Args[1:]), loading an .env
// file first so flags can reference environment defaults. Flags always win
// over the environment.
func Load(args []string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	fs := flag.NewFlagSet("janitord", flag.ContinueOnError)

	listenAddress := fs.String("listen-address", getEnv("JANITOR_LISTEN_ADDRESS", "0.0.0.0"), "address the admin API binds to")
	port := fs.Int("port", getIntEnv("JANITOR_PORT", 8080), "port the admin API listens on")
	interval := fs.Duration("interval", getDurationEnv("JANITOR_INTERVAL", 5*time.Minute), "ingress sweep interval")
	configPath := fs.String("config", getEnv("JANITOR_CONFIG", ""), "path to the publish policy YAML file")
	dsn := fs.String("dsn", getEnv("DATABASE_URL", ""), "PostgreSQL DSN (in-memory storage when empty)")
	dryRun := fs.Bool("dry-run", getBoolEnv("JANITOR_DRY_RUN", false), "accepted but has no effect: publish_one is still invoked")
	once := fs.Bool("once", false, "run a single ingress sweep and exit instead of looping")
	maxMPS := fs.Int("max-mps-per-maintainer", getIntEnv("JANITOR_MAX_MPS_PER_MAINTAINER", 2), "maximum open merge proposals per maintainer")
	noAutoPublish := fs.Bool("no-auto-publish", getBoolEnv("JANITOR_NO_AUTO_PUBLISH", false), "disable the scheduled and event-driven publish loops")
	logLevel := fs.String("log-level", getEnv("LOG_LEVEL", "info"), "log level")
	logFormat := fs.String("log-format", getEnv("LOG_FORMAT", "json"), "log format (json or text)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress:       *listenAddress,
		Port:                *port,
		Interval:            *interval,
		PolicyPath:          *configPath,
		DatabaseDSN:         strings.TrimSpace(*dsn),
		DryRun:              *dryRun,
		Once:                *once,
		NoAutoPublish:       *noAutoPublish,
		MaxMPSPerMaintainer: *maxMPS,
		LogLevel:            *logLevel,
		LogFormat:           *logFormat,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads a .env file from the working directory if present. A
// missing file is not an error; a malformed one is.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
