package assemblies

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"agora/internal/blob"
	"agora/internal/core"
	"agora/internal/exports"
	"agora/internal/persistence"
	"agora/pkg/manifestapi"
)

func install(t *testing.T) (*core.Service, *manifestapi.TypeTable, core.SpaceStore) {
	t.Helper()
	store := persistence.NewMemory()
	plugin := New(store, core.Organization{ID: "org-1"})
	table := manifestapi.NewTypeTable()
	if err := plugin.RegisterTypes(table); err != nil {
		t.Fatalf("RegisterTypes: %v", err)
	}
	svc := core.NewService(core.WithEnvironment(core.Environment{
		Types:    table,
		TestMode: func() bool { return true },
	}))
	meta, err := svc.InstallPlugin(plugin)
	if err != nil {
		t.Fatalf("InstallPlugin: %v", err)
	}
	if meta.Name != "assemblies" || len(meta.Spaces) != 1 || meta.Spaces[0] != SpaceName {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	return svc, table, store
}

func TestManifestFromEmbeddedDeclaration(t *testing.T) {
	svc, _, _ := install(t)
	m, err := svc.Space(SpaceName)
	if err != nil {
		t.Fatalf("Space: %v", err)
	}
	if m.Route() != "assembly" || m.AdminScopeName != "assemblies" || m.CardTemplate == "" {
		t.Fatalf("unexpected manifest %+v route %q", m, m.Route())
	}
	if keys := m.ContextKeys(); len(keys) != 2 || keys[0] != "admin" || keys[1] != "public" {
		t.Fatalf("unexpected contexts %v", keys)
	}
	admin, err := m.Context("admin")
	if err != nil || admin.EngineName != "decidim_admin_assemblies" {
		t.Fatalf("unexpected admin context %+v %v", admin, err)
	}
	ref, err := m.PermissionsType()
	if err != nil || ref == nil {
		t.Fatalf("PermissionsType: %v", err)
	}
	perms, ok := ref.New().(Permissions)
	if !ok || !perms.Allowed("admin", "update") || perms.Allowed("visitor", "update") || !perms.Allowed("visitor", "read") {
		t.Fatalf("unexpected permissions behaviour")
	}
	model, err := m.ModelType()
	if err != nil {
		t.Fatalf("ModelType: %v", err)
	}
	if _, ok := model.New().(*Assembly); !ok {
		t.Fatalf("expected *Assembly model")
	}
}

func TestSeedQueryAndExport(t *testing.T) {
	ctx := context.Background()
	svc, table, _ := install(t)
	org := core.Organization{ID: "org-1"}
	for i := 0; i < 2; i++ {
		if err := svc.Seed(ctx, SpaceName); err != nil {
			t.Fatalf("Seed: %v", err)
		}
	}
	records, err := svc.ParticipatorySpaces(ctx, org)
	if err != nil {
		t.Fatalf("ParticipatorySpaces: %v", err)
	}
	if len(records) != 2 || records[0].Slug != "citizen-assembly" {
		t.Fatalf("expected idempotent seeds, got %+v", records)
	}
	if other, _ := svc.ParticipatorySpaces(ctx, core.Organization{ID: "org-2"}); len(other) != 0 {
		t.Fatalf("expected no spaces for unseeded organization, got %+v", other)
	}

	store := blob.NewMemory()
	artifacts, err := exports.NewRunner(svc, table, store).Run(ctx, exports.Request{Space: SpaceName, Export: "assemblies", Organization: org})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].Rows != 1 {
		t.Fatalf("expected only the published assembly, got %+v", artifacts)
	}
	_, rc, err := store.Get(ctx, artifacts[0].Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rows[0]["slug"] != "citizen-assembly" || rows[0]["organization_id"] != "org-1" {
		t.Fatalf("unexpected exported row %+v", rows[0])
	}
}

func TestSeedWithoutStore(t *testing.T) {
	p := New(nil)
	if err := p.seed(context.Background()); err == nil {
		t.Fatalf("expected missing store error")
	}
	if _, err := (Published{}).Collect(context.Background(), core.Organization{}); err == nil {
		t.Fatalf("expected missing store error from collector")
	}
	if _, err := (Serializer{}).Serialize("nope"); err == nil {
		t.Fatalf("expected serializer type error")
	}
}
