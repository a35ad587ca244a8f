package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Port == 0 || cfg.DBPath == "" || cfg.Netdisk.SaveDir == "" {
		t.Fatalf("default config invalid: %+v", cfg)
	}
	if cfg.IntervalMin < 1 || cfg.IntervalMax < cfg.IntervalMin {
		t.Fatalf("default pacing interval invalid: [%d,%d]", cfg.IntervalMin, cfg.IntervalMax)
	}
	if cfg.Cleanup.DirCron == "" || cfg.Cleanup.TrashCron == "" {
		t.Fatalf("default cleanup crons missing: %+v", cfg.Cleanup)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("not_exists.yml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Port != Default().Port {
		t.Fatalf("expected default port, got %d", cfg.Port)
	}
}

func TestLoadReadsAndValidates(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "cfg.yml")
	content := []byte("port: 9090\ndb_path: test.db\nnetdisk:\n  base_url: https://api.example.com\n  save_dir: /stash\ninterval_min: 2\ninterval_max: 4\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.DBPath != "test.db" || cfg.Netdisk.SaveDir != "/stash" {
		t.Fatalf("config not applied: %+v", cfg)
	}
	if cfg.Cleanup.DirCron == "" {
		t.Fatalf("cron default should fill missing field")
	}
}

func TestLoadRejectsBadPacing(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "cfg.yml")
	if err := os.WriteFile(path, []byte("interval_min: 9\ninterval_max: 3\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for min > max")
	}
}
