package manifestapi

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TypeRef is a live handle to a host type. New builds a fresh instance.
type TypeRef struct {
	Name string
	New  func() any
}

// TypeLookup maps configured type names to type references.
type TypeLookup interface {
	Lookup(name string) (TypeRef, bool)
}

// ResolveType turns a configured type name into a reference. An empty name is
// not an error: it returns nil so optional fields can stay unset.
func ResolveType(lookup TypeLookup, name string) (*TypeRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	if lookup == nil {
		return nil, UnresolvedType{Name: name}
	}
	ref, ok := lookup.Lookup(name)
	if !ok {
		return nil, UnresolvedType{Name: name}
	}
	return &ref, nil
}

// TypeTable is a map-backed TypeLookup populated by plugins at start-up.
type TypeTable struct {
	refs map[string]TypeRef
}

// NewTypeTable returns an empty table.
func NewTypeTable() *TypeTable {
	return &TypeTable{refs: make(map[string]TypeRef)}
}

// Register associates name with a factory. Names are unique.
func (t *TypeTable) Register(name string, factory func() any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("manifestapi: type name required")
	}
	if factory == nil {
		return fmt.Errorf("manifestapi: type %s: factory required", name)
	}
	if _, exists := t.refs[name]; exists {
		return fmt.Errorf("manifestapi: type %s already registered", name)
	}
	t.refs[name] = TypeRef{Name: name, New: factory}
	return nil
}

// Lookup implements TypeLookup.
func (t *TypeTable) Lookup(name string) (TypeRef, bool) {
	if t == nil {
		return TypeRef{}, false
	}
	ref, ok := t.refs[name]
	return ref, ok
}

// Names returns registered names in sorted order.
func (t *TypeTable) Names() []string {
	names := make([]string, 0, len(t.refs))
	for name := range t.refs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeLookupFunc adapts a function to TypeLookup.
type TypeLookupFunc func(name string) (TypeRef, bool)

// Lookup implements TypeLookup.
func (f TypeLookupFunc) Lookup(name string) (TypeRef, bool) { return f(name) }
