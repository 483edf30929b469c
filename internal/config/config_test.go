package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if cfg != Defaults() {
		t.Errorf("cfg = %+v, want Defaults()", cfg)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if cfg != Defaults() {
		t.Errorf("cfg = %+v, want Defaults()", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termcastd.yaml")
	body := "caster_addr: 0.0.0.0:9000\nmotd: welcome\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if cfg.CasterAddr != "0.0.0.0:9000" {
		t.Errorf("CasterAddr = %q", cfg.CasterAddr)
	}
	if cfg.MOTD != "welcome" {
		t.Errorf("MOTD = %q", cfg.MOTD)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	// Untouched fields keep their default.
	if cfg.WatcherAddr != Defaults().WatcherAddr {
		t.Errorf("WatcherAddr = %q, want default", cfg.WatcherAddr)
	}
}

func TestLoadMalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termcastd.yaml")
	if err := os.WriteFile(path, []byte("caster_addr: [unterminated"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed YAML")
	}
}
