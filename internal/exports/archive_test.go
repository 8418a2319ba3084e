package exports

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"agora/internal/blob"
	"agora/internal/core"
)

func TestArtifactsListsStoredRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := core.Organization{ID: "o"}
	members, err := f.runner.Run(ctx, Request{Space: "assemblies", Export: "members", Organization: org})
	if err != nil {
		t.Fatalf("Run members: %v", err)
	}
	if _, err := f.runner.Run(ctx, Request{Space: "processes", Export: "processes", Organization: org, Format: core.FormatCSV}); err != nil {
		t.Fatalf("Run processes: %v", err)
	}
	// Blobs outside the export layout are ignored.
	if _, err := f.store.Put(ctx, "exports/assemblies/members/notes.txt", strings.NewReader("x"), blob.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	listed, err := f.runner.Artifacts(ctx, "assemblies", "")
	if err != nil {
		t.Fatalf("Artifacts: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected two assemblies artifacts, got %+v", listed)
	}
	for _, a := range listed {
		if a.Space != "assemblies" || a.Export != "members" || a.Format != core.FormatJSON || a.ContentType != "application/json" {
			t.Fatalf("unexpected listed artifact %+v", a)
		}
	}
	byID := map[string]int{members[0].ID: members[0].Rows, members[1].ID: members[1].Rows}
	for _, a := range listed {
		rows, ok := byID[a.ID]
		if !ok || rows != a.Rows {
			t.Fatalf("listed artifact %+v does not match a run", a)
		}
	}

	only, err := f.runner.Artifacts(ctx, "processes", "processes")
	if err != nil || len(only) != 1 || only[0].Format != core.FormatCSV {
		t.Fatalf("expected one csv artifact, got %+v %v", only, err)
	}
	if none, err := f.runner.Artifacts(ctx, "processes", "missing"); err != nil || len(none) != 0 {
		t.Fatalf("expected empty listing, got %+v %v", none, err)
	}
	if _, err := f.runner.Artifacts(ctx, "", ""); err == nil {
		t.Fatalf("expected error without a space")
	}
	if _, err := f.runner.Artifacts(ctx, "assemblies/members", ""); err == nil {
		t.Fatalf("expected error for a nested selector")
	}
	if !f.metrics.has("export_list:true") {
		t.Fatalf("expected export_list metric, got %v", f.metrics.ops)
	}
}

func TestArtifactAndOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	artifacts, err := f.runner.Run(ctx, Request{Space: "processes", Export: "processes", Organization: core.Organization{ID: "o"}, Format: core.FormatCSV})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	key := artifacts[0].Key

	head, err := f.runner.Artifact(ctx, key)
	if err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if head.ID != artifacts[0].ID || head.Rows != 1 || head.SizeBytes != artifacts[0].SizeBytes {
		t.Fatalf("unexpected artifact %+v", head)
	}

	opened, body, err := f.runner.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "org,slug\no,budget\n" || opened.Export != "processes" {
		t.Fatalf("unexpected body %q for %+v", data, opened)
	}

	if _, err := f.runner.Artifact(ctx, "exports/processes/processes/missing.csv"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := f.runner.Open(ctx, "other/key.json"); err == nil {
		t.Fatalf("expected keys outside exports to be refused")
	}
	if _, err := f.runner.Artifact(ctx, "exports/../secret"); err == nil {
		t.Fatalf("expected traversal to be refused")
	}
}

func TestPruneKeepsNewestPerExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := core.Organization{ID: "o"}
	for i := 0; i < 3; i++ {
		if _, err := f.runner.Run(ctx, Request{Space: "processes", Export: "processes", Organization: org, Format: core.FormatCSV}); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}

	removed, err := f.runner.Prune(ctx, "processes", "", 1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected two removed artifacts, got %+v", removed)
	}
	left, err := f.runner.Artifacts(ctx, "processes", "")
	if err != nil || len(left) != 1 {
		t.Fatalf("expected one artifact left, got %+v %v", left, err)
	}
	for _, a := range removed {
		if a.Key == left[0].Key {
			t.Fatalf("kept artifact %s was reported removed", a.Key)
		}
		if _, err := f.store.Head(ctx, a.Key); !errors.Is(err, blob.ErrNotFound) {
			t.Fatalf("expected %s deleted, got %v", a.Key, err)
		}
	}

	if again, err := f.runner.Prune(ctx, "processes", "processes", 1); err != nil || len(again) != 0 {
		t.Fatalf("expected nothing more to prune, got %+v %v", again, err)
	}
	if _, err := f.runner.Prune(ctx, "processes", "", -1); err == nil {
		t.Fatalf("expected negative keep to fail")
	}
	if !f.metrics.has("export_prune:true") || !f.metrics.has("export_prune:false") {
		t.Fatalf("expected prune metrics, got %v", f.metrics.ops)
	}
	if !strings.Contains(f.logs.String(), "export artifacts pruned") {
		t.Fatalf("expected prune log line")
	}
}
