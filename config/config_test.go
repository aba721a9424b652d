package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Services["app"] != 3000 || cfg.Services["postgres"] != 5432 || cfg.Services["redis"] != 6379 {
		t.Fatalf("unexpected default services: %v", cfg.Services)
	}
	if cfg.PortRange != [2]int{3000, 9999} {
		t.Fatalf("unexpected default range: %v", cfg.PortRange)
	}
	if time.Duration(cfg.LockTimeout) != 5*time.Second {
		t.Fatalf("unexpected default lock timeout: %v", cfg.LockTimeout)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := writeConfig(t, `
services:
  web: 4000
  db: 5000
portRange: [4000, 4999]
worktreeDir: /tmp/trees
lockTimeout: 10s
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Services["web"] != 4000 || cfg.Services["db"] != 5000 {
		t.Fatalf("unexpected services: %v", cfg.Services)
	}
	if _, ok := cfg.Services["app"]; ok {
		t.Fatal("explicit services must replace defaults, not merge")
	}
	if cfg.PortRange != [2]int{4000, 4999} {
		t.Fatalf("unexpected range: %v", cfg.PortRange)
	}
	if cfg.WorktreeDir != "/tmp/trees" {
		t.Fatalf("unexpected worktree dir: %s", cfg.WorktreeDir)
	}
	if time.Duration(cfg.LockTimeout) != 10*time.Second {
		t.Fatalf("unexpected lock timeout: %v", cfg.LockTimeout)
	}
}

func TestLoadPartialFileKeepsRemainingDefaults(t *testing.T) {
	dir := writeConfig(t, "worktreeDir: ../wt\n")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorktreeDir != "../wt" {
		t.Fatalf("unexpected worktree dir: %s", cfg.WorktreeDir)
	}
	if cfg.Services["app"] != 3000 {
		t.Fatalf("default services lost: %v", cfg.Services)
	}
	if cfg.PortRange != [2]int{3000, 9999} {
		t.Fatalf("default range lost: %v", cfg.PortRange)
	}
}

func TestLoadRejectsInvalidRange(t *testing.T) {
	dir := writeConfig(t, "portRange: [9000, 3000]\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestLoadRejectsInvalidServicePort(t *testing.T) {
	dir := writeConfig(t, "services:\n  app: 70000\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for out-of-range base port")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := writeConfig(t, "lockTimeout: whenever\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestResolveWorktreeDir(t *testing.T) {
	cfg := Default()
	got := cfg.ResolveWorktreeDir("/home/user/repo")
	if got != "/home/user/worktrees" {
		t.Fatalf("unexpected resolved dir: %s", got)
	}

	cfg.WorktreeDir = "/abs/trees"
	if got := cfg.ResolveWorktreeDir("/home/user/repo"); got != "/abs/trees" {
		t.Fatalf("absolute dir not honored: %s", got)
	}
}
