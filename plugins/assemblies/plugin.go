// Package assemblies provides the assemblies participatory space. Its
// manifest is declared in assemblies.hcl; seeds, queries and the types the
// manifest names are supplied in Go.
package assemblies

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"agora/internal/core"
	"agora/internal/manifestfile"
	"agora/pkg/manifestapi"
)

// SpaceName is the manifest name registered by the plugin.
const SpaceName = "assemblies"

//go:embed assemblies.hcl
var manifestHCL []byte

// Plugin implements core.Plugin.
type Plugin struct {
	store core.SpaceStore
	orgs  []core.Organization
}

// New constructs the plugin. Seeds are created for each of orgs.
func New(store core.SpaceStore, orgs ...core.Organization) *Plugin {
	return &Plugin{store: store, orgs: orgs}
}

// Name returns the plugin identifier.
func (*Plugin) Name() string { return "assemblies" }

// Version returns the plugin semantic version.
func (*Plugin) Version() string { return "0.3.0" }

// RegisterTypes adds the types named by assemblies.hcl to table.
func (p *Plugin) RegisterTypes(table *manifestapi.TypeTable) error {
	return errors.Join(
		table.Register("Decidim::Assembly", func() any { return &Assembly{} }),
		table.Register("assemblies.Permissions", func() any { return Permissions{} }),
		table.Register("assemblies.Serializer", func() any { return Serializer{} }),
		table.Register("assemblies.Published", func() any { return Published{store: p.store} }),
	)
}

// Register applies the embedded declaration and wires the query and seeds.
func (p *Plugin) Register(registry *core.PluginRegistry) error {
	decls, err := manifestfile.ParseHCL(manifestHCL, "assemblies.hcl")
	if err != nil {
		return err
	}
	if len(decls) != 1 || decls[0].Name != SpaceName {
		return fmt.Errorf("assemblies.hcl must declare exactly the %s space", SpaceName)
	}
	return registry.RegisterSpace(SpaceName, func(m *core.SpaceManifest) error {
		if err := decls[0].Apply(m); err != nil {
			return err
		}
		m.ParticipatorySpaces(p.spaces)
		m.Seeds(p.seed)
		return nil
	})
}

func (p *Plugin) spaces(ctx context.Context, org core.Organization) ([]core.SpaceRecord, error) {
	if p.store == nil {
		return nil, nil
	}
	return p.store.ListSpaces(ctx, SpaceName, org.ID)
}

var seeds = []struct {
	slug, title string
	published   bool
}{
	{"citizen-assembly", "Citizen Assembly", true},
	{"youth-council", "Youth Council", false},
}

func (p *Plugin) seed(ctx context.Context) error {
	if p.store == nil {
		return errors.New("assemblies: no space store configured")
	}
	for _, org := range p.orgs {
		for _, s := range seeds {
			_, err := p.store.SaveSpace(ctx, core.SpaceRecord{
				Manifest:       SpaceName,
				OrganizationID: org.ID,
				Slug:           s.slug,
				Title:          s.title,
				Published:      s.published,
			})
			if err != nil {
				return fmt.Errorf("seed %s/%s: %w", org.ID, s.slug, err)
			}
		}
	}
	return nil
}

// Assembly is the model type of the space.
type Assembly struct {
	Slug      string
	Title     string
	Published bool
}

// Permissions grants read access to everyone and full access to admins.
type Permissions struct{}

// Allowed reports whether role may perform action.
func (Permissions) Allowed(role, action string) bool {
	return role == "admin" || action == "read"
}

// Serializer flattens space records for export.
type Serializer struct{}

// Serialize implements core.Serializer.
func (Serializer) Serialize(item any) (map[string]any, error) {
	rec, ok := item.(core.SpaceRecord)
	if !ok {
		return nil, fmt.Errorf("assemblies serializer: unexpected %T", item)
	}
	return map[string]any{
		"id":              rec.ID,
		"slug":            rec.Slug,
		"title":           rec.Title,
		"organization_id": rec.OrganizationID,
		"published":       rec.Published,
		"created_at":      rec.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// Published collects the organization's published assemblies.
type Published struct {
	store core.SpaceStore
}

// Collect implements core.Collector.
func (c Published) Collect(ctx context.Context, org core.Organization) ([]any, error) {
	if c.store == nil {
		return nil, errors.New("assemblies: no space store configured")
	}
	records, err := c.store.ListSpaces(ctx, SpaceName, org.ID)
	if err != nil {
		return nil, err
	}
	var out []any
	for _, rec := range records {
		if rec.Published {
			out = append(out, rec)
		}
	}
	return out, nil
}
