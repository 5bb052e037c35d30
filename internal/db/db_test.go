package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		driver, in, want string
	}{
		{DriverSQLite, `SELECT * FROM orders WHERE id=?`, `SELECT * FROM orders WHERE id=?`},
		{DriverPgx, `UPDATE orders SET notes=? WHERE id=?`, `UPDATE orders SET notes=$1 WHERE id=$2`},
		{DriverPgx, `SELECT '?' AS q, id FROM orders WHERE id=?`, `SELECT '?' AS q, id FROM orders WHERE id=$1`},
		{DriverPgx, `SELECT 1`, `SELECT 1`},
	}
	for _, tt := range tests {
		if got := Rebind(tt.driver, tt.in); got != tt.want {
			t.Errorf("Rebind(%s, %q) = %q, want %q", tt.driver, tt.in, got, tt.want)
		}
	}
}

func TestOpenSQLiteWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if conn.Driver != DriverSQLite {
		t.Fatalf("driver = %q", conn.Driver)
	}
	var n int
	if err := conn.QueryRowContext(context.Background(), `SELECT ?+1`, 1).Scan(&n); err != nil || n != 2 {
		t.Fatalf("query: %d %v", n, err)
	}
	if Path(dir) != filepath.Join(dir, ".kilnline", "kilnline.db") {
		t.Fatalf("path = %s", Path(dir))
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Open(Config{Driver: DriverPgx}); err == nil {
		t.Fatalf("expected error for pgx without dsn")
	}
}
