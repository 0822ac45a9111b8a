package storage

import (
	"context"
	"os"
	"testing"
)

func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("FAROL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FAROL_TEST_POSTGRES_DSN is required for postgres integration test")
	}
	return dsn
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := requireDSN(t)
	ctx := context.Background()

	store := NewPostgresStore(dsn)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	db, _ := store.getDB()
	for _, table := range []string{"farol_qtables", "farol_genomes", "farol_runs"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}
	exerciseStore(t, store)
}

func TestPostgresStoreRequiresDSN(t *testing.T) {
	if err := NewPostgresStore("").Init(context.Background()); err == nil {
		t.Fatal("expected missing dsn error")
	}
}
