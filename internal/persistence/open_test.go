package persistence

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"agora/internal/config"
	"agora/internal/core"
	"agora/internal/infra/persistence/postgres"
	"agora/testutil"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	mem, err := Open(ctx, config.StoreConfig{})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, err := mem.SaveSpace(ctx, core.SpaceRecord{Manifest: "m", OrganizationID: "o", Slug: "s"}); err != nil {
		t.Fatalf("memory save: %v", err)
	}

	lite, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "spaces.db")})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer func() { _ = lite.Close() }()
	if _, err := lite.SaveSpace(ctx, core.SpaceRecord{Manifest: "m", OrganizationID: "o", Slug: "s"}); err != nil {
		t.Fatalf("sqlite save: %v", err)
	}

	if _, err := Open(ctx, config.StoreConfig{Driver: "mongo"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestOpenFailureReturnsNilStore(t *testing.T) {
	ctx := context.Background()
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(blocker, "sub", "spaces.db")})
	if err == nil || store != nil {
		t.Fatalf("expected nil store and error for sqlite, got %v %v", store, err)
	}

	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	})
	defer restore()
	store, err = Open(ctx, config.StoreConfig{Driver: "postgres", DSN: "postgres://localhost/agora"})
	if err == nil || store != nil {
		t.Fatalf("expected nil store and error for postgres, got %v %v", store, err)
	}
}

func TestOnlyPersistencePackageImportsInfra(t *testing.T) {
	testutil.AssertImportersConfined(t, "agora/...", "agora/internal/infra/persistence", "agora/internal/persistence")
}
