package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid log format")
	}
}

func TestValidate_InvalidProviderType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Providers[0].Type = "postgres"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for unknown provider type")
	}
}

func TestValidate_MissingScheme(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Providers[0].Scheme = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for missing scheme")
	}
}

func TestValidate_NoProviders(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Providers = nil

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error when no providers are configured")
	}
	if !strings.Contains(err.Error(), "at least one provider") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_DuplicateScheme(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Providers = []ProviderConfig{
		{Scheme: "file", Type: "memory"},
		{Scheme: "file", Type: "localfs", Localfs: map[string]any{"path": "/tmp"}},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for duplicate scheme")
	}
	if !strings.Contains(err.Error(), "duplicate scheme") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_ListenAddrWithoutExposeScheme(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.ListenAddr = ":9187"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error when listen_addr is set without expose_scheme")
	}
	if !strings.Contains(err.Error(), "expose_scheme") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_ExposeSchemeNotConfigured(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.ListenAddr = ":9187"
	cfg.Server.ExposeScheme = "nope"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for unmatched expose_scheme")
	}
}

func TestValidate_ZeroShutdownTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.ShutdownTimeout = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for zero shutdown timeout")
	}
}
