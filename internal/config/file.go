package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// maxFileSize bounds the YAML configuration file.
const maxFileSize = 1 << 20

// fileConfig mirrors Config in YAML. Zero values leave the current
// setting alone.
type fileConfig struct {
	Port               int      `yaml:"port"`
	TempRoot           string   `yaml:"temp_root"`
	Timeout            string   `yaml:"timeout"`
	LatexPath          string   `yaml:"latex_path"`
	DvisvgmPath        string   `yaml:"dvisvgm_path"`
	MaxBodyBytes       int64    `yaml:"max_body_bytes"`
	DatabaseURL        string   `yaml:"database_url"`
	RedisAddr          string   `yaml:"redis_addr"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	ShutdownTimeout    string   `yaml:"shutdown_timeout"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Source *bool  `yaml:"source"`
	} `yaml:"log"`
}

var errEmptyFile = errors.New("config file is empty")

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%s: %w", path, errEmptyFile)
	}
	if len(data) > maxFileSize {
		return fmt.Errorf("%s: config file exceeds %d bytes", path, maxFileSize)
	}

	var fc fileConfig
	if err := yaml.UnmarshalWithOptions(data, &fc, yaml.Strict()); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if fc.Port < 0 || fc.Port > 65535 {
		return fmt.Errorf("%s: invalid port %d", path, fc.Port)
	}
	if fc.Port != 0 {
		c.Port = fc.Port
	}
	setString(&c.TempRoot, fc.TempRoot)
	setString(&c.LatexPath, fc.LatexPath)
	setString(&c.DvisvgmPath, fc.DvisvgmPath)
	setString(&c.DatabaseURL, fc.DatabaseURL)
	setString(&c.RedisAddr, fc.RedisAddr)
	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)
	if fc.Log.Source != nil {
		c.LogSource = *fc.Log.Source
	}
	if fc.MaxBodyBytes != 0 {
		c.MaxBodyBytes = fc.MaxBodyBytes
	}
	if len(fc.CORSAllowedOrigins) > 0 {
		c.CORSAllowedOrigins = fc.CORSAllowedOrigins
	}
	if fc.Timeout != "" {
		d, ok := parseDuration(fc.Timeout)
		if !ok {
			return fmt.Errorf("%s: invalid timeout %q", path, fc.Timeout)
		}
		c.CompileTimeout = d
	}
	if fc.ShutdownTimeout != "" {
		d, ok := parseDuration(fc.ShutdownTimeout)
		if !ok {
			return fmt.Errorf("%s: invalid shutdown_timeout %q", path, fc.ShutdownTimeout)
		}
		c.ShutdownTimeout = d
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
