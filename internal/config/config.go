// Package config loads server settings from an optional YAML file, .env files and
// environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the settings for the API server and CLI.
type Config struct {
	Port           string   `yaml:"port"`
	DBPath         string   `yaml:"db_path"`
	FiberTablePath string   `yaml:"fiber_table_path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	SilentDB       bool     `yaml:"silent_db"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
}

// Load reads the YAML file at path (skipped when path is empty), fills defaults and then
// applies environment overrides. .env files are loaded first and never override variables
// already present in the environment.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.setDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads $ENV_FILE when set, otherwise .env.local then .env. Missing files
// are ignored.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Port == "" {
		c.Port = "2000"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join("data", "intertexe.db")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		c.Port = v
	}
	if v := strings.TrimSpace(os.Getenv("INTERTEXE_DB_PATH")); v != "" {
		c.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("FIBER_TABLE_PATH")); v != "" {
		c.FiberTablePath = v
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("SILENT_DB")); v != "" {
		silent, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse SILENT_DB: %w", err)
		}
		c.SilentDB = silent
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		c.LogFormat = v
	}
	return nil
}

// ConfigureLogging applies the log level and formatter to the standard logrus logger.
func (c *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logrus.SetLevel(level)
	switch strings.ToLower(c.LogFormat) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
