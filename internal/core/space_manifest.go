package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stoewer/go-strcase"

	"agora/pkg/manifestapi"
)

const (
	// DefaultContextKey is the context used when no key is given.
	DefaultContextKey = "public"
	// DefaultQueryTypeName is the query type spaces expose unless they override it.
	DefaultQueryTypeName = "core.ParticipatorySpaceType"
)

// Attribute names accepted by SpaceAttributeSchema.
const (
	AttrName                 = "name"
	AttrModelType            = "model_type"
	AttrRouteName            = "route_name"
	AttrQueryType            = "query_type"
	AttrPermissionsType      = "permissions_type"
	AttrIcon                 = "icon"
	AttrStylesheet           = "stylesheet"
	AttrCard                 = "card"
	AttrAdminScopeName       = "admin_scope_name"
	AttrDataPortableEntities = "data_portable_entities"
)

// SpaceAttributeSchema returns the attribute declarations of a space manifest.
func SpaceAttributeSchema() *manifestapi.AttributeSchema {
	schema := manifestapi.NewAttributeSchema()
	decls := []struct {
		name string
		typ  manifestapi.AttributeType
		opts []manifestapi.AttributeOption
	}{
		{AttrName, manifestapi.TypeString, nil},
		{AttrModelType, manifestapi.TypeString, nil},
		{AttrRouteName, manifestapi.TypeString, nil},
		{AttrQueryType, manifestapi.TypeString, []manifestapi.AttributeOption{manifestapi.WithDefault(DefaultQueryTypeName)}},
		{AttrPermissionsType, manifestapi.TypeString, nil},
		{AttrIcon, manifestapi.TypeString, nil},
		{AttrStylesheet, manifestapi.TypeString, nil},
		{AttrCard, manifestapi.TypeString, nil},
		{AttrAdminScopeName, manifestapi.TypeString, nil},
		{AttrDataPortableEntities, manifestapi.TypeStringList, nil},
	}
	for _, d := range decls {
		if err := schema.Declare(d.name, d.typ, d.opts...); err != nil {
			// Static declarations; a failure here is a programming error.
			panic(err)
		}
	}
	return schema
}

// SpacesQuery lists the spaces of one manifest that belong to an organization.
type SpacesQuery func(ctx context.Context, org Organization) ([]SpaceRecord, error)

// SeedFunc creates sample data for a space.
type SeedFunc func(ctx context.Context) error

// Environment carries the host collaborators a manifest needs when it is read.
type Environment struct {
	Types     manifestapi.TypeLookup
	Resources ResourceRegistry
	Status    StatusWriter
	// TestMode is consulted on every Seed call; nil means false.
	TestMode func() bool
}

// SpaceManifest describes a participatory space contributed by a plugin.
// Configure it during start-up; afterwards treat it as read-only.
type SpaceManifest struct {
	name string

	ModelTypeName           string
	RouteName               string
	QueryTypeName           string
	PermissionsTypeName     string
	Icon                    string
	StylesheetPath          string
	CardTemplate            string
	AdminScopeName          string
	DataPortableEntityNames []string

	env      Environment
	contexts *manifestapi.Registry[ContextManifest]
	exports  *manifestapi.Registry[ExportManifest]
	query    SpacesQuery
	seed     SeedFunc
}

// NewSpaceManifest constructs a manifest with static defaults applied.
func NewSpaceManifest(name string, env Environment) *SpaceManifest {
	m := &SpaceManifest{
		name:                    strings.TrimSpace(name),
		QueryTypeName:           DefaultQueryTypeName,
		DataPortableEntityNames: []string{},
		env:                     env,
	}
	m.contexts = manifestapi.NewKeyedRegistry("context", func(key string) *ContextManifest {
		return &ContextManifest{Key: key}
	})
	m.exports = manifestapi.NewListRegistry("export", func(name string) *ExportManifest {
		return &ExportManifest{Name: name, Manifest: m.name}
	})
	return m
}

// NewSpaceManifestFromAttributes builds a manifest from loosely typed values,
// coercing each through SpaceAttributeSchema.
func NewSpaceManifestFromAttributes(values map[string]any, env Environment) (*SpaceManifest, error) {
	attrs, err := SpaceAttributeSchema().Build(values)
	if err != nil {
		return nil, err
	}
	m := NewSpaceManifest(attrs.String(AttrName), env)
	if err := m.ApplyAttributes(attrs); err != nil {
		return nil, err
	}
	return m, nil
}

// ApplyAttributes copies explicitly set attributes onto the manifest. The
// name cannot be changed this way.
func (m *SpaceManifest) ApplyAttributes(attrs manifestapi.Attributes) error {
	if attrs.IsSet(AttrName) && attrs.String(AttrName) != m.name {
		return manifestapi.ValidationError{Manifest: m.name, Field: AttrName, Message: "name is immutable"}
	}
	strs := map[string]*string{
		AttrModelType:       &m.ModelTypeName,
		AttrRouteName:       &m.RouteName,
		AttrQueryType:       &m.QueryTypeName,
		AttrPermissionsType: &m.PermissionsTypeName,
		AttrIcon:            &m.Icon,
		AttrStylesheet:      &m.StylesheetPath,
		AttrCard:            &m.CardTemplate,
		AttrAdminScopeName:  &m.AdminScopeName,
	}
	for attr, field := range strs {
		if attrs.IsSet(attr) {
			*field = attrs.String(attr)
		}
	}
	if attrs.IsSet(AttrDataPortableEntities) {
		m.DataPortableEntityNames = attrs.Strings(AttrDataPortableEntities)
	}
	return nil
}

// Name returns the manifest identifier.
func (m *SpaceManifest) Name() string { return m.name }

// Environment returns the collaborators bound at construction.
func (m *SpaceManifest) Environment() Environment { return m.env }

// Validate reports whether the manifest is usable.
func (m *SpaceManifest) Validate() error {
	if m.name == "" {
		return manifestapi.ValidationError{Field: AttrName, Message: "name required"}
	}
	return nil
}

// IsValid is Validate as a predicate.
func (m *SpaceManifest) IsValid() bool { return m.Validate() == nil }

// Route returns RouteName, or a name derived from ModelTypeName on every call
// when RouteName is blank.
func (m *SpaceManifest) Route() string {
	if route := strings.TrimSpace(m.RouteName); route != "" {
		return route
	}
	return deriveRouteName(m.ModelTypeName)
}

func deriveRouteName(typeName string) string {
	typeName = strings.TrimSpace(typeName)
	if typeName == "" {
		return ""
	}
	typeName = strings.NewReplacer("::", "/", ".", "/").Replace(typeName)
	if i := strings.LastIndex(typeName, "/"); i >= 0 {
		typeName = typeName[i+1:]
	}
	return strcase.SnakeCase(typeName)
}

// RegisterContext registers or replaces the context for key. An empty key
// means DefaultContextKey.
func (m *SpaceManifest) RegisterContext(key string, build manifestapi.Builder[ContextManifest]) {
	m.contexts.Register(contextKey(key), build)
}

// Context returns the context for key, failing with manifestapi.NotFound when
// it was never registered.
func (m *SpaceManifest) Context(key string) (*ContextManifest, error) {
	return m.contexts.Resolve(contextKey(key))
}

// ContextKeys lists registered context keys.
func (m *SpaceManifest) ContextKeys() []string { return m.contexts.Keys() }

func contextKey(key string) string {
	if key = strings.TrimSpace(key); key == "" {
		return DefaultContextKey
	}
	return key
}

// Exports appends an export registration. A blank name is ignored.
// Registering the same name twice keeps both.
func (m *SpaceManifest) Exports(name string, build manifestapi.Builder[ExportManifest]) {
	if strings.TrimSpace(name) == "" {
		return
	}
	m.exports.Register(name, build)
}

// ExportManifests returns the built exports in registration order.
func (m *SpaceManifest) ExportManifests() ([]*ExportManifest, error) {
	return m.exports.ResolveAll()
}

// ExportNames lists registered export names in registration order.
func (m *SpaceManifest) ExportNames() []string { return m.exports.Keys() }

// PermissionsType resolves PermissionsTypeName; nil when it is unset.
func (m *SpaceManifest) PermissionsType() (*manifestapi.TypeRef, error) {
	return manifestapi.ResolveType(m.env.Types, m.PermissionsTypeName)
}

// ModelType resolves ModelTypeName; nil when it is unset.
func (m *SpaceManifest) ModelType() (*manifestapi.TypeRef, error) {
	return manifestapi.ResolveType(m.env.Types, m.ModelTypeName)
}

// QueryType resolves QueryTypeName; nil when it is unset.
func (m *SpaceManifest) QueryType() (*manifestapi.TypeRef, error) {
	return manifestapi.ResolveType(m.env.Types, m.QueryTypeName)
}

// ParticipatorySpaces stores the query listing this manifest's spaces.
// Registering again replaces the previous query.
func (m *SpaceManifest) ParticipatorySpaces(query SpacesQuery) { m.query = query }

// HasSpacesQuery reports whether a query was registered.
func (m *SpaceManifest) HasSpacesQuery() bool { return m.query != nil }

// Spaces runs the registered query. Without one it returns no spaces.
func (m *SpaceManifest) Spaces(ctx context.Context, org Organization) ([]SpaceRecord, error) {
	if m.query == nil {
		return nil, nil
	}
	return m.query(ctx, org)
}

// Seeds stores the seed procedure, replacing any earlier one.
func (m *SpaceManifest) Seeds(seed SeedFunc) { m.seed = seed }

// Seed announces itself through the status writer unless running in test
// mode, then runs the seed procedure if one is registered.
func (m *SpaceManifest) Seed(ctx context.Context) error {
	if m.env.Status != nil && !m.testMode() {
		m.env.Status.WriteStatus(fmt.Sprintf("Creating seeds for the %s space...", m.name))
	}
	if m.seed == nil {
		return nil
	}
	return m.seed(ctx)
}

func (m *SpaceManifest) testMode() bool {
	return m.env.TestMode != nil && m.env.TestMode()
}

// RegisterResource declares a resource owned by this space in the injected
// ResourceRegistry.
func (m *SpaceManifest) RegisterResource(name string, build manifestapi.Builder[ResourceManifest]) error {
	if m.env.Resources == nil {
		return errors.New("core: resource registry not configured")
	}
	resource := &ResourceManifest{Name: strings.TrimSpace(name), ParticipatorySpace: m.name}
	if build != nil {
		if err := build(resource); err != nil {
			return err
		}
	}
	return m.env.Resources.RegisterResource(*resource)
}
