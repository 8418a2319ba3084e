package core

import (
	"context"
	"errors"
	"time"
)

// ErrSpaceNotFound is wrapped by SpaceStore lookups that miss.
var ErrSpaceNotFound = errors.New("core: participatory space not found")

// Organization scopes participatory spaces to a tenant.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Host string `json:"host,omitempty"`
}

// SpaceRecord is one persisted participatory space instance.
type SpaceRecord struct {
	ID             string    `json:"id"`
	Manifest       string    `json:"manifest"`
	OrganizationID string    `json:"organization_id"`
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	Published      bool      `json:"published"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SpaceStore persists space instances. Records are unique per
// (Manifest, OrganizationID, Slug); saving an existing triple replaces it.
type SpaceStore interface {
	SaveSpace(ctx context.Context, record SpaceRecord) (SpaceRecord, error)
	FindSpace(ctx context.Context, manifest, organizationID, slug string) (SpaceRecord, error)
	ListSpaces(ctx context.Context, manifest, organizationID string) ([]SpaceRecord, error)
	Close() error
}
