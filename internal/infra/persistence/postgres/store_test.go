package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"agora/internal/core"
	"agora/internal/infra/persistence/postgres/testutil"
)

func TestOpenAppliesSchemaAndUsesNumberedPlaceholders(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return db, nil
	})
	defer restore()

	store, err := Open(ctx, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if gotDriver != "pgx" || gotDSN != defaultDSN {
		t.Fatalf("unexpected open args %q %q", gotDriver, gotDSN)
	}
	stmts := conn.Statements()
	if len(stmts) == 0 || !strings.Contains(stmts[0], "TIMESTAMPTZ") {
		t.Fatalf("expected postgres DDL, got %v", stmts)
	}

	saved, err := store.SaveSpace(ctx, core.SpaceRecord{Manifest: "assemblies", OrganizationID: "org", Slug: "budget", Title: "Budget"})
	if err != nil {
		t.Fatalf("SaveSpace: %v", err)
	}
	if saved.ID == "" || saved.Title != "Budget" {
		t.Fatalf("unexpected saved record %+v", saved)
	}
	stmts = conn.Statements()
	insert := stmts[len(stmts)-1]
	if !strings.Contains(insert, "$8") || strings.Contains(insert, "?") {
		t.Fatalf("expected numbered placeholders, got %s", insert)
	}

	if _, err := store.SaveSpace(ctx, core.SpaceRecord{Manifest: "assemblies", OrganizationID: "org", Slug: "budget", Title: "Renamed"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	list, err := store.ListSpaces(ctx, "assemblies", "org")
	if err != nil {
		t.Fatalf("ListSpaces: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Renamed" || list[0].ID != saved.ID {
		t.Fatalf("expected single upserted row, got %+v", list)
	}
	if _, err := store.FindSpace(ctx, "assemblies", "org", "nope"); !errors.Is(err, core.ErrSpaceNotFound) {
		t.Fatalf("expected ErrSpaceNotFound, got %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()

	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("boom") })
	if _, err := Open(ctx, "postgres://x"); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	if _, err := Open(ctx, "postgres://x"); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
	restore()

	db, conn = testutil.NewStubDB()
	conn.FailExec = true
	restore = OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := Open(ctx, "postgres://x"); err == nil || !strings.Contains(err.Error(), "migrate") {
		t.Fatalf("expected migrate error, got %v", err)
	}
}
