package manifestfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agora/internal/core"
	"agora/pkg/manifestapi"
)

const assembliesHCL = `
space "assemblies" {
  model_type             = "Decidim::Assemblies::Assembly"
  permissions_type       = "assemblies.Permissions"
  data_portable_entities = ["assemblies.Membership"]

  context "public" {
    layout = "layouts/assembly"
  }
  context "admin" {
    layout      = "layouts/admin/assemblies"
    engine_name = "assemblies_admin"
  }

  export "assemblies" {
    serializer           = "assemblies.Serializer"
    collection           = "assemblies.Published"
    include_in_open_data = true
    formats              = ["json"]
  }
}
`

const processesYAML = `
spaces:
  - name: processes
    model_type: Decidim::ParticipatoryProcess
    icon: media/processes.svg
    contexts:
      public:
        layout: layouts/process
    exports:
      - name: processes
        collection: processes.All
      - name: processes
        include_in_open_data: true
`

func TestParseHCL(t *testing.T) {
	decls, err := ParseHCL([]byte(assembliesHCL), "assemblies.hcl")
	if err != nil {
		t.Fatalf("ParseHCL: %v", err)
	}
	if len(decls) != 1 || decls[0].Name != "assemblies" || decls[0].Source != "assemblies.hcl" {
		t.Fatalf("unexpected declarations %+v", decls)
	}
	m, err := decls[0].Manifest(core.Environment{})
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if m.ModelTypeName != "Decidim::Assemblies::Assembly" || m.PermissionsTypeName != "assemblies.Permissions" {
		t.Fatalf("attributes not applied: %+v", m)
	}
	if m.Route() != "assembly" {
		t.Fatalf("expected derived route, got %q", m.Route())
	}
	if m.QueryTypeName != core.DefaultQueryTypeName {
		t.Fatalf("expected default query type, got %q", m.QueryTypeName)
	}
	if got := m.DataPortableEntityNames; len(got) != 1 || got[0] != "assemblies.Membership" {
		t.Fatalf("unexpected portable entities %v", got)
	}
	admin, err := m.Context("admin")
	if err != nil || admin.Layout != "layouts/admin/assemblies" || admin.EngineName != "assemblies_admin" {
		t.Fatalf("unexpected admin context %+v %v", admin, err)
	}
	exports, err := m.ExportManifests()
	if err != nil || len(exports) != 1 {
		t.Fatalf("unexpected exports %+v %v", exports, err)
	}
	e := exports[0]
	if e.SerializerTypeName != "assemblies.Serializer" || !e.IncludeInOpenData || e.SupportsFormat(core.FormatCSV) {
		t.Fatalf("unexpected export manifest %+v", e)
	}
}

func TestParseHCLErrors(t *testing.T) {
	cases := map[string]struct {
		src  string
		want error
	}{
		"syntax":          {src: `space "a" {`},
		"unknown attr":    {src: `space "a" { colour = "red" }`},
		"duplicate":       {src: `space "a" {}` + "\n" + `space "a" {}`},
		"type mismatch":   {src: `space "a" { data_portable_entities = "x" }`, want: manifestapi.ErrTypeMismatch},
		"list for string": {src: `space "a" { icon = ["x"] }`, want: manifestapi.ErrTypeMismatch},
		"bad export attr": {src: `space "a" { export "e" { include_in_open_data = "maybe" } }`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseHCL([]byte(tc.src), "bad.hcl")
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseYAML(t *testing.T) {
	decls, err := ParseYAML([]byte(processesYAML), "processes.yaml")
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if len(decls) != 1 {
		t.Fatalf("expected one declaration, got %d", len(decls))
	}
	m, err := decls[0].Manifest(core.Environment{})
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if m.Icon != "media/processes.svg" || m.Route() != "participatory_process" {
		t.Fatalf("unexpected manifest %+v route %q", m, m.Route())
	}
	if keys := m.ContextKeys(); len(keys) != 1 || keys[0] != "public" {
		t.Fatalf("unexpected contexts %v", keys)
	}
	exports, err := m.ExportManifests()
	if err != nil || len(exports) != 2 {
		t.Fatalf("expected duplicate export names kept, got %+v %v", exports, err)
	}
	if exports[0].CollectionTypeName != "processes.All" || !exports[1].IncludeInOpenData {
		t.Fatalf("unexpected export order %+v %+v", exports[0], exports[1])
	}
}

func TestParseYAMLSchemaViolations(t *testing.T) {
	src := `
spaces:
  - model_type: 3
    colour: red
`
	_, err := ParseYAML([]byte(src), "bad.yaml")
	if !errors.Is(err, manifestapi.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	var ve manifestapi.ValidationError
	if !errors.As(err, &ve) || ve.Manifest != "bad.yaml" || !strings.HasPrefix(ve.Field, "/spaces/0") {
		t.Fatalf("expected located validation error, got %#v", ve)
	}

	if _, err := ParseYAML([]byte(""), "empty.yaml"); !errors.Is(err, manifestapi.ErrValidation) {
		t.Fatalf("expected empty document to fail validation, got %v", err)
	}
	if _, err := ParseYAML([]byte("spaces: [\n"), "broken.yaml"); err == nil {
		t.Fatalf("expected YAML syntax error")
	}
	dup := "spaces:\n  - name: a\n  - name: a\n"
	if _, err := ParseYAML([]byte(dup), "dup.yaml"); !errors.Is(err, manifestapi.ErrValidation) {
		t.Fatalf("expected duplicate space error, got %v", err)
	}
	badFormat := "spaces:\n  - name: a\n    exports:\n      - name: e\n        formats: [xml]\n"
	if _, err := ParseYAML([]byte(badFormat), "fmt.yaml"); !errors.Is(err, manifestapi.ErrValidation) {
		t.Fatalf("expected format enum violation, got %v", err)
	}
}

func TestDeclarationApply(t *testing.T) {
	decls, err := ParseHCL([]byte(assembliesHCL), "a.hcl")
	if err != nil {
		t.Fatalf("ParseHCL: %v", err)
	}
	other := core.NewSpaceManifest("other", core.Environment{})
	if err := decls[0].Apply(other); !errors.Is(err, manifestapi.ErrValidation) {
		t.Fatalf("expected name mismatch validation error, got %v", err)
	}

	d := Declaration{Name: "x", Exports: []ExportDeclaration{{Name: "e", Formats: []string{"xml"}}}}
	m := core.NewSpaceManifest("x", core.Environment{})
	if err := d.Apply(m); err == nil {
		t.Fatalf("expected unknown format error")
	}
	if len(m.ExportNames()) != 0 {
		t.Fatalf("failed apply must not register exports")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("b-processes.yml", processesYAML)
	write("a-assemblies.hcl", assembliesHCL)
	write("README.md", "ignored")

	decls, err := LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(decls) != 2 || decls[0].Name != "assemblies" || decls[1].Name != "processes" {
		t.Fatalf("unexpected load order %+v", decls)
	}
	manifests, err := Manifests(decls, core.Environment{})
	if err != nil || len(manifests) != 2 {
		t.Fatalf("Manifests: %v", err)
	}

	write("c-dup.hcl", `space "processes" {}`)
	if _, err := LoadDir(context.Background(), dir); err == nil || !strings.Contains(err.Error(), "declared in both") {
		t.Fatalf("expected cross-file duplicate error, got %v", err)
	}
	if _, err := LoadDir(context.Background(), filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected missing dir error")
	}
	if _, err := ParseFile("x.toml", nil); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}
