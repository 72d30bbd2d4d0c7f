package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HRVAULT_SESSION_SECRET", "test-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Session.TTL != 12*time.Hour {
		t.Fatalf("ttl = %v", cfg.Session.TTL)
	}
	if cfg.RateLimits.LoginPerEmail != 5 {
		t.Fatalf("login per email = %d", cfg.RateLimits.LoginPerEmail)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hrvault.yaml")
	doc := `
server:
  http_addr: ":9000"
session:
  secret: from-file
  ttl: 1h
rate_limits:
  login_per_email: 2
risk_recipients:
  - risk@hrvault.org
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("HRVAULT_SESSION_SECRET", "from-env")
	t.Setenv("HRVAULT_SESSION_TTL", "30m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9000" {
		t.Fatalf("http addr = %q", cfg.Server.HTTPAddr)
	}
	// Environment beats the file.
	if cfg.Session.Secret != "from-env" {
		t.Fatalf("secret = %q", cfg.Session.Secret)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Fatalf("ttl = %v", cfg.Session.TTL)
	}
	if cfg.RateLimits.LoginPerEmail != 2 {
		t.Fatalf("login per email = %d", cfg.RateLimits.LoginPerEmail)
	}
	// Unset fields keep defaults.
	if cfg.RateLimits.LoginPerIP != 20 {
		t.Fatalf("login per ip = %d", cfg.RateLimits.LoginPerIP)
	}
	if len(cfg.RiskRecipients) != 1 || cfg.RiskRecipients[0] != "risk@hrvault.org" {
		t.Fatalf("risk recipients = %v", cfg.RiskRecipients)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("HRVAULT_SESSION_SECRET", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error without session secret")
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("HRVAULT_SESSION_SECRET", "x")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
