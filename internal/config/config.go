// Package config assembles the service configuration. Sources are applied
// in order, later ones winning: built-in defaults, an optional YAML file,
// .env and the environment, then command-line flags.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

// DefaultPort is used when the first positional argument is absent or not
// a number.
const DefaultPort = 3000

// Config holds everything cmd/api needs to wire the service.
type Config struct {
	Port int

	// Render pipeline
	TempRoot       string        // parent of the per-job scratch directories
	CompileTimeout time.Duration // wall-clock limit for latex + dvisvgm
	LatexPath      string
	DvisvgmPath    string
	MaxBodyBytes   int64

	// Logging
	LogLevel  string
	LogFormat string
	LogSource bool

	// Optional render ledger backends; empty disables them.
	DatabaseURL string
	RedisAddr   string

	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:               DefaultPort,
		TempRoot:           "temp",
		CompileTimeout:     5 * time.Second,
		LatexPath:          "latex",
		DvisvgmPath:        "dvisvgm",
		MaxBodyBytes:       1 << 20,
		LogLevel:           "info",
		LogFormat:          "json",
		CORSAllowedOrigins: []string{"*"},
		ShutdownTimeout:    30 * time.Second,
	}
}

// Load builds the configuration from all sources. args excludes the
// program name; its first positional argument is the listen port.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("texsvg", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "YAML configuration file")
	tempRoot := fs.String("temp-root", "", "directory holding per-job scratch directories")
	timeout := fs.Duration("timeout", 0, "compile deadline")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "log format (json, text)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	_ = godotenv.Load()

	cfg := Default()

	path := *configPath
	if path == "" {
		path = getEnv("RENDER_CONFIG", "")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if fs.Changed("temp-root") {
		cfg.TempRoot = *tempRoot
	}
	if fs.Changed("timeout") {
		cfg.CompileTimeout = *timeout
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = *logFormat
	}
	if port, ok := parsePort(fs.Arg(0)); ok {
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.TempRoot = getEnv("RENDER_TEMP_ROOT", c.TempRoot)
	c.CompileTimeout = getEnvAsDuration("RENDER_TIMEOUT", c.CompileTimeout)
	c.LatexPath = getEnv("LATEX_PATH", c.LatexPath)
	c.DvisvgmPath = getEnv("DVISVGM_PATH", c.DvisvgmPath)
	c.MaxBodyBytes = getEnvAsInt64("MAX_BODY_BYTES", c.MaxBodyBytes)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogSource = getEnv("LOG_SOURCE", strconv.FormatBool(c.LogSource)) == "true"
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.CORSAllowedOrigins = getEnvAsList("CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)
	c.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
}

// Validate checks the values a render cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TempRoot) == "" {
		return fmt.Errorf("temp root is required")
	}
	if c.CompileTimeout <= 0 {
		return fmt.Errorf("compile timeout must be positive, got %s", c.CompileTimeout)
	}
	if c.LatexPath == "" {
		return fmt.Errorf("LATEX_PATH is required")
	}
	if c.DvisvgmPath == "" {
		return fmt.Errorf("DVISVGM_PATH is required")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// parsePort treats anything that is not a valid TCP port as absent.
func parsePort(raw string) (int, bool) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

func getEnv(key, defaultValue string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	return v
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("5s") and bare seconds ("5").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if d, ok := parseDuration(getEnv(key, "")); ok {
		return d
	}
	return defaultValue
}

func parseDuration(raw string) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, true
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	out := make([]string, 0)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
