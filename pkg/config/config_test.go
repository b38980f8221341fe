package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoConfigFile_UsesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Logging.Level = %q, want INFO", cfg.Logging.Level)
	}
	if len(cfg.Providers) != 1 {
		t.Fatalf("Providers = %d, want 1", len(cfg.Providers))
	}
	if cfg.Providers[0].Type != "memory" {
		t.Errorf("Providers[0].Type = %q, want memory", cfg.Providers[0].Type)
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	content := `
logging:
  level: debug
  format: json
  output: stderr
server:
  shutdown_timeout: 5s
providers:
  - scheme: file
    type: localfs
    localfs:
      path: /srv/data
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Logging.Level = %q, want DEBUG (normalized)", cfg.Logging.Level)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].Scheme != "file" {
		t.Fatalf("unexpected providers: %+v", cfg.Providers)
	}
	if cfg.Providers[0].Localfs["path"] != "/srv/data" {
		t.Errorf("Providers[0].Localfs[path] = %v, want /srv/data", cfg.Providers[0].Localfs["path"])
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")

	path := GetDefaultConfigPath()
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("GetDefaultConfigPath() = %q, want a config.yaml path", path)
	}
}

func TestConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")

	if ConfigExists() {
		t.Fatal("ConfigExists() = true before any file was written")
	}

	dir := GetConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(GetDefaultConfigPath(), []byte("providers: []\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if !ConfigExists() {
		t.Fatal("ConfigExists() = false after writing the default config file")
	}
}
