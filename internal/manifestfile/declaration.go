// Package manifestfile loads participatory space manifests declared in HCL
// or YAML files.
package manifestfile

import (
	"fmt"

	"agora/internal/core"
	"agora/pkg/manifestapi"
)

// Declaration is one space as written in a manifest file.
type Declaration struct {
	Name       string
	Source     string
	Attributes manifestapi.Attributes
	Contexts   []ContextDeclaration
	Exports    []ExportDeclaration
}

// ContextDeclaration mirrors core.ContextManifest.
type ContextDeclaration struct {
	Key        string
	Layout     string
	Helper     string
	EngineName string
}

// ExportDeclaration mirrors the declarative part of core.ExportManifest.
type ExportDeclaration struct {
	Name              string
	Serializer        string
	Collection        string
	IncludeInOpenData bool
	Formats           []string
}

// Apply copies the declaration onto m. Formats are checked before m is
// touched so a failed Apply leaves m unchanged.
func (d Declaration) Apply(m *core.SpaceManifest) error {
	if m.Name() != d.Name {
		return manifestapi.ValidationError{Manifest: m.Name(), Field: core.AttrName, Message: fmt.Sprintf("declaration is for %q", d.Name)}
	}
	formats := make([][]core.ExportFormat, len(d.Exports))
	for i, e := range d.Exports {
		for _, raw := range e.Formats {
			f, err := core.ParseExportFormat(raw)
			if err != nil {
				return manifestapi.ValidationError{Manifest: d.Name, Field: "export." + e.Name + ".formats", Message: err.Error()}
			}
			formats[i] = append(formats[i], f)
		}
	}
	if err := m.ApplyAttributes(d.Attributes); err != nil {
		return err
	}
	for _, c := range d.Contexts {
		m.RegisterContext(c.Key, func(cm *core.ContextManifest) error {
			cm.Layout = c.Layout
			cm.Helper = c.Helper
			cm.EngineName = c.EngineName
			return nil
		})
	}
	for i, e := range d.Exports {
		fs := formats[i]
		m.Exports(e.Name, func(em *core.ExportManifest) error {
			em.SerializerTypeName = e.Serializer
			em.CollectionTypeName = e.Collection
			em.IncludeInOpenData = e.IncludeInOpenData
			em.Formats = fs
			return nil
		})
	}
	return nil
}

// Manifest builds and validates a fresh manifest from the declaration.
func (d Declaration) Manifest(env core.Environment) (*core.SpaceManifest, error) {
	m := core.NewSpaceManifest(d.Name, env)
	if err := d.Apply(m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Manifests builds every declaration in order.
func Manifests(decls []Declaration, env core.Environment) ([]*core.SpaceManifest, error) {
	out := make([]*core.SpaceManifest, 0, len(decls))
	for _, d := range decls {
		m, err := d.Manifest(env)
		if err != nil {
			return nil, fmt.Errorf("%s: space %s: %w", d.Source, d.Name, err)
		}
		out = append(out, m)
	}
	return out, nil
}
