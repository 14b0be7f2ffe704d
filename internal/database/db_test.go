package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_EmptyPath_ReturnsError(t *testing.T) {
	db, err := Open("")
	if err == nil {
		db.Close()
		t.Fatal("空のパスでエラーが返されるべき")
	}
}

// TestOpen_CreatesParentDirectory はデータディレクトリが存在しない場合に作成されることを検証する。
func TestOpen_CreatesParentDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	path := filepath.Join(dir, "resaleman.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("データディレクトリが作成されていない: %v", err)
	}
}

func TestOpen_EnablesForeignKeys(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fk.db"))
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	defer db.Close()

	var enabled int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&enabled); err != nil {
		t.Fatalf("PRAGMA foreign_keys failed: %v", err)
	}
	if enabled != 1 {
		t.Errorf("foreign_keys = %d, want 1", enabled)
	}
}

func TestDSN_ContainsPragmas(t *testing.T) {
	dsn := DSN("/tmp/x.db")
	for _, want := range []string{"file:/tmp/x.db", "foreign_keys(1)", "journal_mode(WAL)", "busy_timeout(5000)"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN %q should contain %q", dsn, want)
		}
	}
}
