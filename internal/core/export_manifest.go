package core

import (
	"context"
	"fmt"
	"strings"

	"agora/pkg/manifestapi"
)

// ExportFormat enumerates artifact encodings.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// ParseExportFormat normalises user input into a known format.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// CollectionFunc returns the items an export covers for an organization.
type CollectionFunc func(ctx context.Context, org Organization) ([]any, error)

// Collector is implemented by types named through ExportManifest.CollectionTypeName.
type Collector interface {
	Collect(ctx context.Context, org Organization) ([]any, error)
}

// Serializer turns one collected item into a flat record. Types named through
// ExportManifest.SerializerTypeName must implement it.
type Serializer interface {
	Serialize(item any) (map[string]any, error)
}

// ExportManifest describes one data export of a space.
type ExportManifest struct {
	Name               string
	Manifest           string
	SerializerTypeName string
	CollectionTypeName string
	Collection         CollectionFunc
	IncludeInOpenData  bool
	// Formats restricts the encodings offered; empty means all.
	Formats []ExportFormat
}

// SupportsFormat reports whether the export may be rendered as f.
func (e *ExportManifest) SupportsFormat(f ExportFormat) bool {
	if len(e.Formats) == 0 {
		return f == FormatJSON || f == FormatCSV
	}
	for _, allowed := range e.Formats {
		if allowed == f {
			return true
		}
	}
	return false
}

// Items gathers the export's collection, preferring Collection over a
// Collector resolved by name.
func (e *ExportManifest) Items(ctx context.Context, types manifestapi.TypeLookup, org Organization) ([]any, error) {
	if e.Collection != nil {
		return e.Collection(ctx, org)
	}
	ref, err := manifestapi.ResolveType(types, e.CollectionTypeName)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", e.Name, err)
	}
	if ref == nil {
		return nil, fmt.Errorf("export %s: no collection configured", e.Name)
	}
	collector, ok := ref.New().(Collector)
	if !ok {
		return nil, fmt.Errorf("export %s: type %s does not implement Collector", e.Name, ref.Name)
	}
	return collector.Collect(ctx, org)
}

// Serializer resolves SerializerTypeName. A nil Serializer with a nil error
// means items are passed through untouched.
func (e *ExportManifest) Serializer(types manifestapi.TypeLookup) (Serializer, error) {
	ref, err := manifestapi.ResolveType(types, e.SerializerTypeName)
	if err != nil || ref == nil {
		return nil, err
	}
	serializer, ok := ref.New().(Serializer)
	if !ok {
		return nil, fmt.Errorf("export %s: type %s does not implement Serializer", e.Name, ref.Name)
	}
	return serializer, nil
}
