package migrate

import (
	"context"
	"path/filepath"
	"testing"

	"techcomm/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{DSN: filepath.Join(t.TempDir(), "m.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	latest, err := Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	current, err := Current(ctx, conn)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current != latest || latest < 1 {
		t.Fatalf("expected version %d, got %d", latest, current)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO documents(collection,id,doc,created_at,updated_at) VALUES ('events','x','not json','t','t')`); err == nil {
		t.Fatalf("expected invalid json to be rejected")
	}
}
