// Package processes provides the participatory processes space, configured
// entirely through manifest builders.
package processes

import (
	"context"
	"errors"
	"fmt"

	"agora/internal/core"
	"agora/pkg/manifestapi"
)

const (
	// SpaceName is the manifest name registered by the plugin.
	SpaceName = "participatory_processes"
	// ExportName is shared by the admin and open data exports.
	ExportName = "processes"
	// StepResource is the resource registered for process phases.
	StepResource = "process_step"
)

const (
	modelType       = "Decidim::ParticipatoryProcess"
	permissionsType = "processes.Permissions"
	serializerType  = "processes.Serializer"
	stepModelType   = "Decidim::ParticipatoryProcessStep"
)

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
func (*Plugin) Name() string { return "processes" }

// Version returns the plugin semantic version.
func (*Plugin) Version() string { return "0.2.1" }

// RegisterTypes adds the model, permissions and serializer types to table.
func (*Plugin) RegisterTypes(table *manifestapi.TypeTable) error {
	return errors.Join(
		table.Register(modelType, func() any { return &Process{} }),
		table.Register(stepModelType, func() any { return &Step{} }),
		table.Register(permissionsType, func() any { return Permissions{} }),
		table.Register(serializerType, func() any { return Serializer{} }),
	)
}

// Register declares the space.
func (p *Plugin) Register(registry *core.PluginRegistry) error {
	return registry.RegisterSpace(SpaceName, func(m *core.SpaceManifest) error {
		m.ModelTypeName = modelType
		m.PermissionsTypeName = permissionsType
		m.Icon = "media/images/decidim_participatory_processes.svg"
		m.StylesheetPath = "decidim/participatory_processes/participatory_processes"
		m.AdminScopeName = "participatory_processes"
		m.DataPortableEntityNames = []string{"processes.Follow"}

		m.RegisterContext("public", func(c *core.ContextManifest) error {
			c.Layout = "layouts/decidim/participatory_process"
			c.Helper = "processes.Helper"
			return nil
		})
		m.RegisterContext("admin", func(c *core.ContextManifest) error {
			c.Layout = "layouts/decidim/admin/participatory_process"
			c.EngineName = "decidim_admin_participatory_processes"
			return nil
		})

		// Administrators get every process in either format; open data only
		// carries published ones.
		m.Exports(ExportName, func(e *core.ExportManifest) error {
			e.SerializerTypeName = serializerType
			e.Collection = p.collect(false)
			e.Formats = []core.ExportFormat{core.FormatJSON, core.FormatCSV}
			return nil
		})
		m.Exports(ExportName, func(e *core.ExportManifest) error {
			e.SerializerTypeName = serializerType
			e.Collection = p.collect(true)
			e.IncludeInOpenData = true
			return nil
		})

		if err := m.RegisterResource(StepResource, func(r *core.ResourceManifest) error {
			r.ModelTypeName = stepModelType
			r.CardTemplate = "decidim/participatory_processes/process_step_m"
			return nil
		}); err != nil {
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

func (p *Plugin) collect(publishedOnly bool) core.CollectionFunc {
	return func(ctx context.Context, org core.Organization) ([]any, error) {
		if p.store == nil {
			return nil, errors.New("processes: no space store configured")
		}
		records, err := p.store.ListSpaces(ctx, SpaceName, org.ID)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(records))
		for _, rec := range records {
			if publishedOnly && !rec.Published {
				continue
			}
			out = append(out, rec)
		}
		return out, nil
	}
}

var seeds = []struct {
	slug, title string
	published   bool
}{
	{"participatory-budget", "Participatory Budget", true},
	{"urban-plan", "Urban Plan Review", true},
	{"mobility-draft", "Mobility Strategy (draft)", false},
}

func (p *Plugin) seed(ctx context.Context) error {
	if p.store == nil {
		return errors.New("processes: no space store configured")
	}
	for _, org := range p.orgs {
		for _, s := range seeds {
			if _, err := p.store.SaveSpace(ctx, core.SpaceRecord{
				Manifest:       SpaceName,
				OrganizationID: org.ID,
				Slug:           s.slug,
				Title:          s.title,
				Published:      s.published,
			}); err != nil {
				return fmt.Errorf("seed %s/%s: %w", org.ID, s.slug, err)
			}
		}
	}
	return nil
}

// Process is the model type of the space.
type Process struct {
	Slug      string
	Title     string
	Published bool
	Steps     []Step
}

// Step is one phase of a process.
type Step struct {
	Title    string
	Position int
	Active   bool
}

// Permissions lets admins and process moderators change processes.
type Permissions struct{}

// Allowed reports whether role may perform action on a process.
func (Permissions) Allowed(role, action string) bool {
	switch role {
	case "admin":
		return true
	case "process_moderator":
		return action != "destroy"
	default:
		return action == "read"
	}
}

// Serializer flattens space records for export.
type Serializer struct{}

// Serialize renders a core.SpaceRecord as an export row.
func (Serializer) Serialize(item any) (map[string]any, error) {
	rec, ok := item.(core.SpaceRecord)
	if !ok {
		return nil, fmt.Errorf("processes serializer: unexpected %T", item)
	}
	return map[string]any{
		"id":        rec.ID,
		"slug":      rec.Slug,
		"title":     rec.Title,
		"published": rec.Published,
	}, nil
}
