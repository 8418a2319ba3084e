// Package memory provides an in-process space store for tests and the
// default development configuration.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agora/internal/core"
)

var _ core.SpaceStore = (*Store)(nil)

type key struct {
	manifest, organization, slug string
}

// Store keeps records in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records map[key]core.SpaceRecord
	now     func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[key]core.SpaceRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SaveSpace upserts on manifest, organization and slug.
func (s *Store) SaveSpace(_ context.Context, record core.SpaceRecord) (core.SpaceRecord, error) {
	if record.Manifest == "" || record.OrganizationID == "" || record.Slug == "" {
		return core.SpaceRecord{}, fmt.Errorf("space record requires manifest, organization_id and slug")
	}
	k := key{record.Manifest, record.OrganizationID, record.Slug}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[k]; ok {
		existing.Title = record.Title
		existing.Published = record.Published
		existing.UpdatedAt = now
		s.records[k] = existing
		return existing, nil
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	s.records[k] = record
	return record, nil
}

// FindSpace returns an error wrapping core.ErrSpaceNotFound on a miss.
func (s *Store) FindSpace(_ context.Context, manifest, organizationID, slug string) (core.SpaceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key{manifest, organizationID, slug}]
	if !ok {
		return core.SpaceRecord{}, fmt.Errorf("%w: %s/%s/%s", core.ErrSpaceNotFound, manifest, organizationID, slug)
	}
	return record, nil
}

// ListSpaces returns matching records ordered by slug.
func (s *Store) ListSpaces(_ context.Context, manifest, organizationID string) ([]core.SpaceRecord, error) {
	s.mu.RLock()
	var out []core.SpaceRecord
	for k, record := range s.records {
		if k.manifest == manifest && k.organization == organizationID {
			out = append(out, record)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].Slug, out[j].Slug) < 0 })
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
