package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"runs", "cycles", "readbacks"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/history.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		name, want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.want); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSchema_Columns(t *testing.T) {
	s := openTestStore(t)

	tables := map[string][]string{
		"runs":      {"id", "layout", "integrator", "elements", "started_at"},
		"cycles":    {"run_id", "seq", "deck_hash", "started_at", "duration_ns", "error"},
		"readbacks": {"run_id", "seq", "channel", "value"},
	}
	for table, expected := range tables {
		columns := getTableColumns(t, s.db, table)
		for _, col := range expected {
			if !slices.Contains(columns, col) {
				t.Errorf("%s table missing column %q", table, col)
			}
		}
	}
}

func TestSchema_Indexes(t *testing.T) {
	s := openTestStore(t)

	if idx := getTableIndexes(t, s.db, "cycles"); !slices.Contains(idx, "idx_cycles_failed") {
		t.Errorf("cycles table missing index idx_cycles_failed, have %v", idx)
	}
	if idx := getTableIndexes(t, s.db, "runs"); !slices.Contains(idx, "idx_runs_started") {
		t.Errorf("runs table missing index idx_runs_started, have %v", idx)
	}
}

func TestMigration_FromVersionZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("DROP INDEX idx_cycles_failed"); err != nil {
		t.Fatalf("drop index: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("reset user_version: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if idx := getTableIndexes(t, s.db, "cycles"); !slices.Contains(idx, "idx_cycles_failed") {
		t.Error("migration did not recreate idx_cycles_failed")
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}
