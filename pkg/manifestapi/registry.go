package manifestapi

import "sort"

// Builder configures a freshly constructed sub-manifest in place.
type Builder[T any] func(*T) error

// Mode selects how a Registry stores registrations.
type Mode int

const (
	// ModeKeyed keeps one builder per key; registering a key again replaces it.
	ModeKeyed Mode = iota
	// ModeList keeps every registration in order, duplicates included.
	ModeList
)

func (m Mode) String() string {
	if m == ModeList {
		return "list"
	}
	return "keyed"
}

// Registry stores sub-manifest builders and builds their targets lazily.
// It is not safe for concurrent use; registration is expected to finish
// before resolution starts.
type Registry[T any] struct {
	kind string
	mode Mode
	newT func(key string) *T

	builders map[string]Builder[T]
	built    map[string]*T

	entries  []listEntry[T]
	resolved []*T
	cached   bool
}

type listEntry[T any] struct {
	key   string
	build Builder[T]
}

// NewKeyedRegistry returns an overwrite-by-key registry. kind names the
// sub-manifest in NotFound errors. newT constructs the target for a key;
// nil means new(T).
func NewKeyedRegistry[T any](kind string, newT func(key string) *T) *Registry[T] {
	return &Registry[T]{
		kind:     kind,
		mode:     ModeKeyed,
		newT:     constructor(newT),
		builders: make(map[string]Builder[T]),
		built:    make(map[string]*T),
	}
}

// NewListRegistry returns an append-only registry.
func NewListRegistry[T any](kind string, newT func(key string) *T) *Registry[T] {
	return &Registry[T]{
		kind: kind,
		mode: ModeList,
		newT: constructor(newT),
	}
}

func constructor[T any](newT func(string) *T) func(string) *T {
	if newT != nil {
		return newT
	}
	return func(string) *T { return new(T) }
}

// Mode reports the storage mode chosen at construction.
func (r *Registry[T]) Mode() Mode { return r.mode }

// Register stores a builder under key. A nil builder registers the key with
// an unconfigured target.
func (r *Registry[T]) Register(key string, build Builder[T]) {
	if r.mode == ModeKeyed {
		r.builders[key] = build
		delete(r.built, key)
		return
	}
	r.entries = append(r.entries, listEntry[T]{key: key, build: build})
	r.resolved = nil
	r.cached = false
}

// Resolve returns the target for key, building it on first use.
func (r *Registry[T]) Resolve(key string) (*T, error) {
	if r.mode != ModeKeyed {
		return nil, ErrWrongMode
	}
	if inst, ok := r.built[key]; ok {
		return inst, nil
	}
	build, ok := r.builders[key]
	if !ok {
		return nil, NotFound{Kind: r.kind, Key: key}
	}
	inst := r.newT(key)
	if build != nil {
		if err := build(inst); err != nil {
			return nil, err
		}
	}
	r.built[key] = inst
	return inst, nil
}

// ResolveAll builds every registration in order. The result is memoized
// until the next Register; callers always receive their own slice.
func (r *Registry[T]) ResolveAll() ([]*T, error) {
	if r.mode != ModeList {
		return nil, ErrWrongMode
	}
	if !r.cached {
		out := make([]*T, 0, len(r.entries))
		for _, entry := range r.entries {
			inst := r.newT(entry.key)
			if entry.build != nil {
				if err := entry.build(inst); err != nil {
					return nil, err
				}
			}
			out = append(out, inst)
		}
		r.resolved = out
		r.cached = true
	}
	return append([]*T(nil), r.resolved...), nil
}

// Keys returns registered keys: sorted for keyed registries, in registration
// order (duplicates included) for list registries.
func (r *Registry[T]) Keys() []string {
	if r.mode == ModeKeyed {
		keys := make([]string, 0, len(r.builders))
		for k := range r.builders {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	}
	keys := make([]string, len(r.entries))
	for i, entry := range r.entries {
		keys[i] = entry.key
	}
	return keys
}

// Has reports whether key has been registered.
func (r *Registry[T]) Has(key string) bool {
	if r.mode == ModeKeyed {
		_, ok := r.builders[key]
		return ok
	}
	for _, entry := range r.entries {
		if entry.key == key {
			return true
		}
	}
	return false
}

// Len returns the number of registrations.
func (r *Registry[T]) Len() int {
	if r.mode == ModeKeyed {
		return len(r.builders)
	}
	return len(r.entries)
}
