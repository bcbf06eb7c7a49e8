package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Data.Source != SourceStatic {
		t.Fatalf("expected static source, got %s", cfg.Data.Source)
	}
	if cfg.Profile.TTL != time.Hour {
		t.Fatalf("expected 1h name ttl, got %s", cfg.Profile.TTL)
	}
	if cfg.XP.Participation != 10 {
		t.Fatalf("expected participation xp 10, got %d", cfg.XP.Participation)
	}
}

func TestFromYAMLAppliesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("data:\n  source: remote\n  remote:\n    dsn: file.db\nroles:\n  admins: [u1]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Data.Remote.Driver != DriverSQLite {
		t.Fatalf("expected sqlite default driver, got %s", cfg.Data.Remote.Driver)
	}
	if cfg.Data.Timeout != 5*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.Data.Timeout)
	}
	if !cfg.Roles.IsAdmin("u1") || cfg.Roles.IsAdmin("u2") || cfg.Roles.IsAdmin("") {
		t.Fatalf("unexpected admin resolution")
	}
}

func TestValidateRejectsUnknownSource(t *testing.T) {
	_, err := FromYAML([]byte("data:\n  source: firebase\n"))
	if err == nil || !strings.Contains(err.Error(), "config.data.source") {
		t.Fatalf("expected source error, got %v", err)
	}
	_, err = FromYAML([]byte("data:\n  source: remote\n  remote:\n    driver: mongo\n    database: \"\"\n"))
	if err == nil || !strings.Contains(err.Error(), "database") {
		t.Fatalf("expected mongo database error, got %v", err)
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg == nil || cfg.Data.Source != SourceStatic {
		t.Fatalf("expected default config")
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected missing config error")
	}
	if err := os.WriteFile(filepath.Join(dir, "techcomm.yml"), []byte(GenerateDefault("club")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Community.Name != "club" {
		t.Fatalf("expected community name, got %q", cfg.Community.Name)
	}
}

func TestWebhookConfig(t *testing.T) {
	cfg, err := FromYAML([]byte("notify:\n  webhooks:\n    - url: https://hooks.example.com/a\n      severities: [error]\n    - url: https://hooks.example.com/b\n      enabled: false\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Notify.Webhooks) != 2 || !cfg.Notify.Webhooks[0].Active() || cfg.Notify.Webhooks[1].Active() {
		t.Fatalf("unexpected webhooks %+v", cfg.Notify.Webhooks)
	}
	_, err = FromYAML([]byte("notify:\n  webhooks:\n    - url: https://hooks.example.com/a\n      severities: [loud]\n"))
	if err == nil || !strings.Contains(err.Error(), "severity") {
		t.Fatalf("expected severity error, got %v", err)
	}
}
