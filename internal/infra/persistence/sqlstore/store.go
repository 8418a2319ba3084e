// Package sqlstore implements core.SpaceStore on database/sql. The sqlite and
// postgres packages supply the driver and Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"agora/internal/core"
)

// Dialect captures the SQL differences between supported engines.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// TimestampType is the column type used for timestamps.
	TimestampType string
}

// SQLite uses ? placeholders.
var SQLite = Dialect{
	Name:          "sqlite",
	Placeholder:   func(int) string { return "?" },
	TimestampType: "DATETIME",
}

// Postgres uses $n placeholders.
var Postgres = Dialect{
	Name:          "postgres",
	Placeholder:   func(n int) string { return fmt.Sprintf("$%d", n) },
	TimestampType: "TIMESTAMPTZ",
}

const columns = "id, manifest, organization_id, slug, title, published, created_at, updated_at"

// Store persists participatory spaces in a single table.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps db and creates the schema when missing.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS participatory_spaces (
		id TEXT PRIMARY KEY,
		manifest TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		slug TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at %[1]s NOT NULL,
		updated_at %[1]s NOT NULL,
		UNIQUE (manifest, organization_id, slug)
	)`, s.dialect.TimestampType),
		`CREATE INDEX IF NOT EXISTS participatory_spaces_org ON participatory_spaces (organization_id, manifest)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: migrate: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// bind rewrites ? markers into the dialect's placeholders.
func (s *Store) bind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveSpace inserts or replaces the record identified by its manifest,
// organization and slug. The stored ID and creation time are kept on replace.
func (s *Store) SaveSpace(ctx context.Context, record core.SpaceRecord) (core.SpaceRecord, error) {
	if err := validate(record); err != nil {
		return core.SpaceRecord{}, err
	}
	now := s.now()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	query := s.bind(`INSERT INTO participatory_spaces (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (manifest, organization_id, slug)
		DO UPDATE SET title = excluded.title, published = excluded.published, updated_at = excluded.updated_at`)
	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.Manifest, record.OrganizationID, record.Slug,
		record.Title, record.Published, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return core.SpaceRecord{}, fmt.Errorf("%s: save space: %w", s.dialect.Name, err)
	}
	return s.FindSpace(ctx, record.Manifest, record.OrganizationID, record.Slug)
}

// FindSpace returns one record or an error wrapping core.ErrSpaceNotFound.
func (s *Store) FindSpace(ctx context.Context, manifest, organizationID, slug string) (core.SpaceRecord, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+columns+` FROM participatory_spaces
		WHERE manifest = ? AND organization_id = ? AND slug = ?`), manifest, organizationID, slug)
	record, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SpaceRecord{}, fmt.Errorf("%w: %s/%s/%s", core.ErrSpaceNotFound, manifest, organizationID, slug)
	}
	if err != nil {
		return core.SpaceRecord{}, fmt.Errorf("%s: find space: %w", s.dialect.Name, err)
	}
	return record, nil
}

// ListSpaces returns the organization's spaces for manifest ordered by slug.
func (s *Store) ListSpaces(ctx context.Context, manifest, organizationID string) ([]core.SpaceRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT `+columns+` FROM participatory_spaces
		WHERE manifest = ? AND organization_id = ? ORDER BY slug`), manifest, organizationID)
	if err != nil {
		return nil, fmt.Errorf("%s: list spaces: %w", s.dialect.Name, err)
	}
	defer func() { _ = rows.Close() }()
	var out []core.SpaceRecord
	for rows.Next() {
		record, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan space: %w", s.dialect.Name, err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (core.SpaceRecord, error) {
	var r core.SpaceRecord
	err := row.Scan(&r.ID, &r.Manifest, &r.OrganizationID, &r.Slug, &r.Title, &r.Published, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return core.SpaceRecord{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func validate(record core.SpaceRecord) error {
	var missing []string
	if record.Manifest == "" {
		missing = append(missing, "manifest")
	}
	if record.OrganizationID == "" {
		missing = append(missing, "organization_id")
	}
	if record.Slug == "" {
		missing = append(missing, "slug")
	}
	if len(missing) > 0 {
		return fmt.Errorf("space record missing %s", strings.Join(missing, ", "))
	}
	return nil
}
