package core

import (
	"fmt"
	"sort"
	"sync"

	"agora/pkg/manifestapi"
)

// ResourceManifest declares a model owned by a participatory space that other
// features (search, linking, cards) can refer to.
type ResourceManifest struct {
	Name               string
	ModelTypeName      string
	CardTemplate       string
	Searchable         bool
	ParticipatorySpace string
}

// ResourceRegistry is the host-wide catalogue of resources.
type ResourceRegistry interface {
	RegisterResource(resource ResourceManifest) error
	Resource(name string) (ResourceManifest, bool)
	Resources() []ResourceManifest
}

// MemoryResourceRegistry is the default ResourceRegistry.
type MemoryResourceRegistry struct {
	mu        sync.RWMutex
	resources map[string]ResourceManifest
}

// NewMemoryResourceRegistry returns an empty registry.
func NewMemoryResourceRegistry() *MemoryResourceRegistry {
	return &MemoryResourceRegistry{resources: make(map[string]ResourceManifest)}
}

// RegisterResource adds a resource; names are unique across spaces.
func (r *MemoryResourceRegistry) RegisterResource(resource ResourceManifest) error {
	if resource.Name == "" {
		return manifestapi.ValidationError{Manifest: resource.ParticipatorySpace, Field: "resource", Message: "name required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.resources[resource.Name]; ok {
		return fmt.Errorf("resource %s already registered by %s", resource.Name, existing.ParticipatorySpace)
	}
	r.resources[resource.Name] = resource
	return nil
}

// Resource returns the resource registered under name.
func (r *MemoryResourceRegistry) Resource(name string) (ResourceManifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[name]
	return res, ok
}

// Resources lists resources sorted by name.
func (r *MemoryResourceRegistry) Resources() []ResourceManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResourceManifest, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// stagedResources holds a plugin's resources until its install commits.
// Once committed, registrations go straight to the target.
type stagedResources struct {
	mu        sync.Mutex
	target    ResourceRegistry
	pending   []ResourceManifest
	committed bool
}

func newStagedResources(target ResourceRegistry) *stagedResources {
	return &stagedResources{target: target}
}

func (r *stagedResources) RegisterResource(resource ResourceManifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.committed {
		return r.target.RegisterResource(resource)
	}
	if resource.Name == "" {
		return manifestapi.ValidationError{Manifest: resource.ParticipatorySpace, Field: "resource", Message: "name required"}
	}
	if existing, ok := r.lookup(resource.Name); ok {
		return fmt.Errorf("resource %s already registered by %s", resource.Name, existing.ParticipatorySpace)
	}
	r.pending = append(r.pending, resource)
	return nil
}

func (r *stagedResources) Resource(name string) (ResourceManifest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(name)
}

func (r *stagedResources) lookup(name string) (ResourceManifest, bool) {
	for _, res := range r.pending {
		if res.Name == name {
			return res, true
		}
	}
	return r.target.Resource(name)
}

func (r *stagedResources) Resources() []ResourceManifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append(r.target.Resources(), r.pending...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// check reports a pending resource that the target gained since staging.
func (r *stagedResources) check() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.pending {
		if existing, ok := r.target.Resource(res.Name); ok {
			return fmt.Errorf("resource %s already registered by %s", res.Name, existing.ParticipatorySpace)
		}
	}
	return nil
}

func (r *stagedResources) commit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.pending {
		if err := r.target.RegisterResource(res); err != nil {
			return err
		}
	}
	r.pending = nil
	r.committed = true
	return nil
}
