package core

import (
	"fmt"
	"sort"
	"strings"

	"agora/pkg/manifestapi"
)

// Plugin contributes one or more participatory space manifests.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	env       Environment
	resources *stagedResources
	spaces    map[string]*SpaceManifest
}

// NewPluginRegistry constructs a plugin registry whose manifests share env.
// Resources the manifests register are held back until the install commits.
func NewPluginRegistry(env Environment) *PluginRegistry {
	r := &PluginRegistry{spaces: make(map[string]*SpaceManifest)}
	if env.Resources != nil {
		r.resources = newStagedResources(env.Resources)
		env.Resources = r.resources
	}
	r.env = env
	return r
}

// commitResources publishes staged resources to the environment's registry.
func (r *PluginRegistry) commitResources() error {
	if r.resources == nil {
		return nil
	}
	return r.resources.commit()
}

func (r *PluginRegistry) checkResources() error {
	if r.resources == nil {
		return nil
	}
	return r.resources.check()
}

// Environment returns the collaborators manifests are bound to.
func (r *PluginRegistry) Environment() Environment { return r.env }

// RegisterSpace creates a manifest named name and hands it to build for
// configuration.
func (r *PluginRegistry) RegisterSpace(name string, build manifestapi.Builder[SpaceManifest]) error {
	manifest := NewSpaceManifest(name, r.env)
	if build != nil {
		if err := build(manifest); err != nil {
			return fmt.Errorf("space %s: %w", manifest.Name(), err)
		}
	}
	return r.RegisterManifest(manifest)
}

// RegisterManifest adds an already configured manifest, such as one loaded
// from a declaration file. Nil manifests are ignored.
func (r *PluginRegistry) RegisterManifest(manifest *SpaceManifest) error {
	if manifest == nil {
		return nil
	}
	if err := manifest.Validate(); err != nil {
		return err
	}
	if _, exists := r.spaces[manifest.Name()]; exists {
		return fmt.Errorf("space %s already registered", manifest.Name())
	}
	r.spaces[manifest.Name()] = manifest
	return nil
}

// Space returns the manifest registered under name.
func (r *PluginRegistry) Space(name string) (*SpaceManifest, bool) {
	m, ok := r.spaces[strings.TrimSpace(name)]
	return m, ok
}

// Spaces returns registered manifests sorted by name.
func (r *PluginRegistry) Spaces() []*SpaceManifest {
	out := make([]*SpaceManifest, 0, len(r.spaces))
	for _, m := range r.spaces {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// PluginMetadata stores metadata describing an installed plugin.
type PluginMetadata struct {
	Name    string
	Version string
	Spaces  []string
}
