package manifestapi

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// AttributeType is the semantic type of a manifest attribute.
type AttributeType struct {
	name string
	ty   cty.Type
}

// Supported attribute types.
var (
	TypeString     = AttributeType{name: "string", ty: cty.String}
	TypeStringList = AttributeType{name: "list(string)", ty: cty.List(cty.String)}
	TypeBool       = AttributeType{name: "bool", ty: cty.Bool}
	TypeNumber     = AttributeType{name: "number", ty: cty.Number}
)

// String returns the type keyword as written in manifest files.
func (t AttributeType) String() string { return t.name }

// CtyType exposes the underlying cty type.
func (t AttributeType) CtyType() cty.Type { return t.ty }

func (t AttributeType) zero() cty.Value {
	switch t.name {
	case TypeString.name:
		return cty.StringVal("")
	case TypeStringList.name:
		return cty.ListValEmpty(cty.String)
	case TypeBool.name:
		return cty.False
	case TypeNumber.name:
		return cty.Zero
	default:
		return cty.NullVal(t.ty)
	}
}

// Attribute is a single declared field.
type Attribute struct {
	Name       string
	Type       AttributeType
	Default    cty.Value
	HasDefault bool
}

// AttributeOption customises a declaration.
type AttributeOption func(*attributeConfig)

type attributeConfig struct {
	def        any
	hasDefault bool
}

// WithDefault sets the value an attribute takes when it is not provided.
func WithDefault(v any) AttributeOption {
	return func(cfg *attributeConfig) {
		cfg.def = v
		cfg.hasDefault = v != nil
	}
}

// AttributeSchema declares the typed, defaulted fields a manifest may hold.
type AttributeSchema struct {
	order []string
	attrs map[string]Attribute
}

// NewAttributeSchema returns an empty schema.
func NewAttributeSchema() *AttributeSchema {
	return &AttributeSchema{attrs: make(map[string]Attribute)}
}

// Declare registers a field. Declaring an existing name again replaces the earlier declaration.
func (s *AttributeSchema) Declare(name string, typ AttributeType, opts ...AttributeOption) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Field: "name", Message: "attribute name required"}
	}
	if typ.name == "" {
		return ValidationError{Field: name, Message: "attribute type required"}
	}
	var cfg attributeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	attr := Attribute{Name: name, Type: typ}
	if cfg.hasDefault {
		raw, err := toCtyValue(cfg.def)
		if err != nil {
			return TypeMismatch{Field: name, Want: typ.name, Got: fmt.Sprintf("%T", cfg.def), Err: err}
		}
		def, ok, err := coerce(attr, raw)
		if err != nil {
			return err
		}
		attr.Default, attr.HasDefault = def, ok
	}
	if _, exists := s.attrs[name]; !exists {
		s.order = append(s.order, name)
	}
	s.attrs[name] = attr
	return nil
}

// Attribute returns the declaration for name.
func (s *AttributeSchema) Attribute(name string) (Attribute, bool) {
	attr, ok := s.attrs[name]
	return attr, ok
}

// Names returns declared attribute names in declaration order.
func (s *AttributeSchema) Names() []string {
	return append([]string(nil), s.order...)
}

// Build coerces plain Go values to the declared types and fills in defaults.
func (s *AttributeSchema) Build(values map[string]any) (Attributes, error) {
	converted := make(map[string]cty.Value, len(values))
	for _, name := range sortedKeys(values) {
		attr, ok := s.attrs[name]
		if !ok {
			return Attributes{}, ValidationError{Field: name, Message: "unknown attribute"}
		}
		raw := values[name]
		v, err := toCtyValue(raw)
		if err != nil {
			return Attributes{}, TypeMismatch{Field: name, Want: attr.Type.name, Got: fmt.Sprintf("%T", raw), Err: err}
		}
		converted[name] = v
	}
	return s.BuildValues(converted)
}

// BuildValues is Build for values that are already cty values, such as decoded HCL expressions.
func (s *AttributeSchema) BuildValues(values map[string]cty.Value) (Attributes, error) {
	out := Attributes{
		values: make(map[string]cty.Value, len(s.attrs)),
		set:    make(map[string]bool, len(values)),
	}
	for _, name := range sortedKeys(values) {
		attr, ok := s.attrs[name]
		if !ok {
			return Attributes{}, ValidationError{Field: name, Message: "unknown attribute"}
		}
		v, present, err := coerce(attr, values[name])
		if err != nil {
			return Attributes{}, err
		}
		if present {
			out.values[name] = v
			out.set[name] = true
		}
	}
	for _, name := range s.order {
		if out.set[name] {
			continue
		}
		attr := s.attrs[name]
		if attr.HasDefault {
			out.values[name] = attr.Default
			continue
		}
		out.values[name] = attr.Type.zero()
	}
	return out, nil
}

// coerce converts v to the attribute type. A null value reports present=false.
func coerce(attr Attribute, v cty.Value) (cty.Value, bool, error) {
	if v.IsNull() {
		return cty.NilVal, false, nil
	}
	if !v.IsWhollyKnown() {
		return cty.NilVal, false, TypeMismatch{Field: attr.Name, Want: attr.Type.name, Got: "unknown value", Err: errors.New("value must be known at load time")}
	}
	out, err := convert.Convert(v, attr.Type.ty)
	if err != nil {
		return cty.NilVal, false, TypeMismatch{Field: attr.Name, Want: attr.Type.name, Got: v.Type().FriendlyName(), Err: err}
	}
	return out, true, nil
}

func toCtyValue(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return x, nil
	case []any:
		if len(x) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(x))
		for i, elem := range x {
			ev, err := toCtyValue(elem)
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(x) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(x))
		for k, elem := range x {
			ev, err := toCtyValue(elem)
			if err != nil {
				return cty.NilVal, fmt.Errorf("key %s: %w", k, err)
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, err
	}
	return gocty.ToCtyValue(v, ty)
}

// Attributes is the result of building a schema: every declared field has a value.
type Attributes struct {
	values map[string]cty.Value
	set    map[string]bool
}

// Value returns the raw cty value for name, or cty.NilVal when the name is not declared.
func (a Attributes) Value(name string) cty.Value {
	v, ok := a.values[name]
	if !ok {
		return cty.NilVal
	}
	return v
}

// IsSet reports whether name was provided rather than defaulted.
func (a Attributes) IsSet(name string) bool { return a.set[name] }

// Names returns the attribute names in sorted order.
func (a Attributes) Names() []string { return sortedKeys(a.values) }

// String returns a string attribute, or "" when absent or of another type.
func (a Attributes) String(name string) string {
	v, ok := a.values[name]
	if !ok || v.IsNull() || !v.Type().Equals(cty.String) {
		return ""
	}
	return v.AsString()
}

// Strings returns a list(string) attribute. Null elements are skipped.
func (a Attributes) Strings(name string) []string {
	v, ok := a.values[name]
	if !ok || v.IsNull() || !v.Type().IsListType() {
		return nil
	}
	out := make([]string, 0, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		if elem.IsNull() || !elem.Type().Equals(cty.String) {
			continue
		}
		out = append(out, elem.AsString())
	}
	return out
}

// Bool returns a bool attribute, false when absent.
func (a Attributes) Bool(name string) bool {
	v, ok := a.values[name]
	if !ok || v.IsNull() || !v.Type().Equals(cty.Bool) {
		return false
	}
	return v.True()
}

// Number returns a number attribute as float64, 0 when absent.
func (a Attributes) Number(name string) float64 {
	v, ok := a.values[name]
	if !ok || v.IsNull() || !v.Type().Equals(cty.Number) {
		return 0
	}
	f, _ := v.AsBigFloat().Float64()
	return f
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
