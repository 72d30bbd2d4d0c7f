// Package config loads portal configuration from a YAML file with
// HRVAULT_* environment overrides. Missing file means defaults; the
// environment wins over the file so deployments can keep secrets out of
// config artifacts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Server holds listener and HTTP hardening settings.
type Server struct {
	HTTPAddr     string        `yaml:"http_addr"`
	GRPCAddr     string        `yaml:"grpc_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// Session controls token issuance and the session cookie.
type Session struct {
	Secret       string        `yaml:"secret"`
	TTL          time.Duration `yaml:"ttl"`
	CookieSecure bool          `yaml:"cookie_secure"`
}

// RateLimits configures the per-route window limits and the global
// per-client throttle. Zero limits disable the corresponding check.
type RateLimits struct {
	LoginPerIP       int           `yaml:"login_per_ip"`
	LoginPerEmail    int           `yaml:"login_per_email"`
	LoginWindow      time.Duration `yaml:"login_window"`
	ExportPerSubject int           `yaml:"export_per_subject"`
	ExportPerIP      int           `yaml:"export_per_ip"`
	ExportWindow     time.Duration `yaml:"export_window"`
	GlobalRPS        float64       `yaml:"global_rps"`
	GlobalBurst      int           `yaml:"global_burst"`
}

// Config is the root configuration document.
type Config struct {
	Server         Server        `yaml:"server"`
	PGDSN          string        `yaml:"pg_dsn"`
	Session        Session       `yaml:"session"`
	RateLimits     RateLimits    `yaml:"rate_limits"`
	DirectoryTTL   time.Duration `yaml:"directory_cache_ttl"`
	RiskRecipients []string      `yaml:"risk_recipients"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			HTTPAddr:     ":8080",
			GRPCAddr:     ":9090",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Session: Session{
			TTL: 12 * time.Hour,
		},
		RateLimits: RateLimits{
			LoginPerIP:       20,
			LoginPerEmail:    5,
			LoginWindow:      time.Minute,
			ExportPerSubject: 3,
			ExportPerIP:      10,
			ExportWindow:     time.Minute,
			GlobalRPS:        50,
			GlobalBurst:      100,
		},
		DirectoryTTL: 30 * time.Second,
	}
}

// Load reads the YAML file at path (empty path skips the file), then
// applies environment overrides. Missing file is not an error; invalid
// YAML is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults plus environment.
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if cfg.Session.Secret == "" {
		return nil, fmt.Errorf("config: session secret is required (HRVAULT_SESSION_SECRET)")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.HTTPAddr, "HRVAULT_HTTP_ADDR")
	setString(&c.Server.GRPCAddr, "HRVAULT_GRPC_ADDR")
	setString(&c.PGDSN, "HRVAULT_PG_DSN")
	setString(&c.Session.Secret, "HRVAULT_SESSION_SECRET")
	setDuration(&c.Session.TTL, "HRVAULT_SESSION_TTL")
	setBool(&c.Session.CookieSecure, "HRVAULT_COOKIE_SECURE")
	setDuration(&c.DirectoryTTL, "HRVAULT_DIRECTORY_CACHE_TTL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
