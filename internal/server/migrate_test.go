package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPendingMigrations(t *testing.T) {
	dir := t.TempDir()
	files := []string{"0002_audit.up.sql", "0001_init.up.sql", "0003_users.up.sql"}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1"), 0o644); err != nil {
			t.Fatalf("write migration: %v", err)
		}
	}
	// ignored: wrong suffix and subdirectory
	if err := os.WriteFile(filepath.Join(dir, "notes.sql"), []byte("SELECT 1"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "archive"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	pending, err := pendingMigrations(dir, map[string]bool{"0002_audit": true})
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	if len(pending) != 2 || pending[0] != "0001_init.up.sql" || pending[1] != "0003_users.up.sql" {
		t.Fatalf("unexpected pending set: %v", pending)
	}
}

func TestPendingMigrationsMissingDir(t *testing.T) {
	if _, err := pendingMigrations(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
