package migrate

import (
	"context"
	"testing"

	"kilnline/internal/db"
)

func TestStatements(t *testing.T) {
	got := statements("-- header\nCREATE TABLE a(x INTEGER);\n\nCREATE INDEX i ON a(x);\nSELECT 1")
	if len(got) != 3 || got[0] != "CREATE TABLE a(x INTEGER);" || got[2] != "SELECT 1" {
		t.Fatalf("statements: %q", got)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	for i := 0; i < 2; i++ {
		if err := Migrate(conn); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}
	var version int
	if err := conn.QueryRowContext(context.Background(), `SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}
	for _, table := range []string{"orders", "order_items", "events", "settings"} {
		if _, err := conn.ExecContext(context.Background(), "SELECT COUNT(*) FROM "+table); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}
