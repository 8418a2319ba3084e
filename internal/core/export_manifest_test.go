package core

import (
	"context"
	"errors"
	"testing"

	"agora/pkg/manifestapi"
)

type memberCollector struct{}

func (memberCollector) Collect(_ context.Context, org Organization) ([]any, error) {
	return []any{org.ID}, nil
}

type upperSerializer struct{}

func (upperSerializer) Serialize(item any) (map[string]any, error) {
	return map[string]any{"value": item}, nil
}

func exportTypes(t *testing.T) *manifestapi.TypeTable {
	t.Helper()
	table := manifestapi.NewTypeTable()
	for name, factory := range map[string]func() any{
		"members.Collector":  func() any { return memberCollector{} },
		"members.Serializer": func() any { return upperSerializer{} },
		"members.Nothing":    func() any { return struct{}{} },
	} {
		if err := table.Register(name, factory); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	return table
}

func TestParseExportFormat(t *testing.T) {
	if f, err := ParseExportFormat(" CSV "); err != nil || f != FormatCSV {
		t.Fatalf("expected csv, got %q %v", f, err)
	}
	if f, err := ParseExportFormat(""); err != nil || f != FormatJSON {
		t.Fatalf("expected json default, got %q %v", f, err)
	}
	if _, err := ParseExportFormat("xml"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestExportManifestSupportsFormat(t *testing.T) {
	e := &ExportManifest{Name: "members"}
	if !e.SupportsFormat(FormatCSV) || !e.SupportsFormat(FormatJSON) {
		t.Fatalf("expected every format by default")
	}
	e.Formats = []ExportFormat{FormatJSON}
	if e.SupportsFormat(FormatCSV) {
		t.Fatalf("expected csv to be excluded")
	}
}

func TestExportManifestItems(t *testing.T) {
	types := exportTypes(t)
	org := Organization{ID: "org-1"}

	direct := &ExportManifest{Name: "a", Collection: func(context.Context, Organization) ([]any, error) {
		return []any{1, 2}, nil
	}, CollectionTypeName: "members.Collector"}
	items, err := direct.Items(context.Background(), types, org)
	if err != nil || len(items) != 2 {
		t.Fatalf("expected collection func to win, got %v %v", items, err)
	}

	named := &ExportManifest{Name: "b", CollectionTypeName: "members.Collector"}
	items, err = named.Items(context.Background(), types, org)
	if err != nil || len(items) != 1 || items[0] != "org-1" {
		t.Fatalf("unexpected collector items %v %v", items, err)
	}

	if _, err := (&ExportManifest{Name: "c"}).Items(context.Background(), types, org); err == nil {
		t.Fatalf("expected error without collection")
	}
	if _, err := (&ExportManifest{Name: "d", CollectionTypeName: "members.Nothing"}).Items(context.Background(), types, org); err == nil {
		t.Fatalf("expected error for non-collector type")
	}
	_, err = (&ExportManifest{Name: "e", CollectionTypeName: "members.Missing"}).Items(context.Background(), types, org)
	if !errors.Is(err, manifestapi.ErrUnresolvedType) {
		t.Fatalf("expected unresolved type, got %v", err)
	}
}

func TestExportManifestSerializer(t *testing.T) {
	types := exportTypes(t)
	s, err := (&ExportManifest{}).Serializer(types)
	if err != nil || s != nil {
		t.Fatalf("expected pass-through serializer, got %v %v", s, err)
	}
	s, err = (&ExportManifest{SerializerTypeName: "members.Serializer"}).Serializer(types)
	if err != nil || s == nil {
		t.Fatalf("expected serializer, got %v", err)
	}
	row, _ := s.Serialize("x")
	if row["value"] != "x" {
		t.Fatalf("unexpected row %v", row)
	}
	if _, err := (&ExportManifest{SerializerTypeName: "members.Nothing"}).Serializer(types); err == nil {
		t.Fatalf("expected error for non-serializer type")
	}
}
