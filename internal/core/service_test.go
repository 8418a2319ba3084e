package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"agora/pkg/manifestapi"
)

type testPlugin struct {
	name     string
	version  string
	register func(*PluginRegistry) error
}

func (p testPlugin) Name() string    { return p.name }
func (p testPlugin) Version() string { return p.version }
func (p testPlugin) Register(r *PluginRegistry) error {
	if p.register == nil {
		return nil
	}
	return p.register(r)
}

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

type captureMetrics struct {
	ops     []string
	success []bool
}

func (c *captureMetrics) Observe(_ context.Context, op string, ok bool, _ time.Duration) {
	c.ops = append(c.ops, op)
	c.success = append(c.success, ok)
}

func spacePlugin(name string, spaces ...string) testPlugin {
	return testPlugin{name: name, version: "1.0.0", register: func(r *PluginRegistry) error {
		for _, space := range spaces {
			if err := r.RegisterSpace(space, nil); err != nil {
				return err
			}
		}
		return nil
	}}
}

func TestInstallPluginRegistersSpaces(t *testing.T) {
	log := &captureLogger{}
	svc := NewService(WithLogger(log))
	meta, err := svc.InstallPlugin(spacePlugin("core-spaces", "processes", "assemblies"))
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if meta.Version != "1.0.0" || len(meta.Spaces) != 2 || meta.Spaces[0] != "assemblies" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	spaces := svc.Spaces()
	if len(spaces) != 2 || spaces[0].Name() != "assemblies" || spaces[1].Name() != "processes" {
		t.Fatalf("expected sorted spaces, got %v", spaces)
	}
	if _, err := svc.Space("assemblies"); err != nil {
		t.Fatalf("space: %v", err)
	}
	if got := svc.RegisteredPlugins(); len(got) != 1 || got[0].Name != "core-spaces" {
		t.Fatalf("unexpected plugins %+v", got)
	}
	if len(log.calls) == 0 || log.calls[0] != "i:plugin installed" {
		t.Fatalf("expected install to be logged, got %v", log.calls)
	}
}

func TestInstallPluginGuards(t *testing.T) {
	svc := NewService()
	if _, err := svc.InstallPlugin(nil); err == nil {
		t.Fatalf("expected nil plugin error")
	}
	if _, err := svc.InstallPlugin(testPlugin{version: "1.0.0"}); err == nil {
		t.Fatalf("expected missing name error")
	}
	if _, err := svc.InstallPlugin(testPlugin{name: "bad", version: "not-a-version"}); err == nil || !strings.Contains(err.Error(), "invalid version") {
		t.Fatalf("expected version error, got %v", err)
	}
	if _, err := svc.InstallPlugin(spacePlugin("a", "assemblies")); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := svc.InstallPlugin(spacePlugin("a", "other")); err == nil {
		t.Fatalf("expected duplicate plugin error")
	}
	if _, err := svc.InstallPlugin(spacePlugin("b", "assemblies")); err == nil || !strings.Contains(err.Error(), "already registered by a") {
		t.Fatalf("expected duplicate space error, got %v", err)
	}
}

func TestInstallPluginIsAtomic(t *testing.T) {
	svc := NewService()
	if _, err := svc.InstallPlugin(spacePlugin("first", "assemblies")); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := svc.InstallPlugin(spacePlugin("second", "processes", "assemblies")); err == nil {
		t.Fatalf("expected conflict")
	}
	if _, err := svc.Space("processes"); !errors.Is(err, manifestapi.ErrNotFound) {
		t.Fatalf("expected failed install to leave no spaces behind, got %v", err)
	}
	if len(svc.RegisteredPlugins()) != 1 {
		t.Fatalf("expected failed plugin to stay unregistered")
	}
}

func TestInstallPluginStagesResources(t *testing.T) {
	svc := NewService()
	if _, err := svc.InstallPlugin(spacePlugin("first", "assemblies")); err != nil {
		t.Fatalf("install: %v", err)
	}
	withMeeting := func(name, space string) testPlugin {
		return testPlugin{name: name, version: "1.0.0", register: func(r *PluginRegistry) error {
			return r.RegisterSpace(space, func(m *SpaceManifest) error {
				return m.RegisterResource("meeting", nil)
			})
		}}
	}
	if _, err := svc.InstallPlugin(withMeeting("second", "assemblies")); err == nil {
		t.Fatalf("expected conflict")
	}
	if res, ok := svc.Environment().Resources.Resource("meeting"); ok {
		t.Fatalf("failed install left resource behind: %+v", res)
	}

	if _, err := svc.InstallPlugin(withMeeting("second", "meetings")); err != nil {
		t.Fatalf("corrected install: %v", err)
	}
	res, ok := svc.Environment().Resources.Resource("meeting")
	if !ok || res.ParticipatorySpace != "meetings" {
		t.Fatalf("expected committed resource, got %+v %v", res, ok)
	}
	m, err := svc.Space("meetings")
	if err != nil {
		t.Fatalf("Space: %v", err)
	}
	if err := m.RegisterResource("agenda", nil); err != nil {
		t.Fatalf("late resource: %v", err)
	}
	if _, ok := svc.Environment().Resources.Resource("agenda"); !ok {
		t.Fatalf("expected resource registered after install to reach the service registry")
	}
}

func TestInstallPluginPropagatesBuilderErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService()
	_, err := svc.InstallPlugin(testPlugin{name: "broken", version: "0.1.0", register: func(r *PluginRegistry) error {
		return r.RegisterSpace("assemblies", func(*SpaceManifest) error { return boom })
	}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected builder error, got %v", err)
	}
	_, err = svc.InstallPlugin(testPlugin{name: "unnamed", version: "0.1.0", register: func(r *PluginRegistry) error {
		return r.RegisterSpace("", nil)
	}})
	if !errors.Is(err, manifestapi.ErrValidation) {
		t.Fatalf("expected validation error for unnamed space, got %v", err)
	}
}

func TestInstallManifests(t *testing.T) {
	svc := NewService()
	declared := NewSpaceManifest("conferences", svc.Environment())
	if err := svc.InstallManifests("manifests/conferences.hcl", declared, nil); err != nil {
		t.Fatalf("install manifests: %v", err)
	}
	if err := svc.InstallManifests("again", NewSpaceManifest("conferences", svc.Environment())); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := svc.InstallManifests("twice", NewSpaceManifest("x", svc.Environment()), NewSpaceManifest("x", svc.Environment())); err == nil {
		t.Fatalf("expected duplicate within one batch")
	}
}

func TestServiceParticipatorySpacesAggregates(t *testing.T) {
	metrics := &captureMetrics{}
	svc := NewService(WithMetrics(metrics))
	_, err := svc.InstallPlugin(testPlugin{name: "spaces", version: "1.0.0", register: func(r *PluginRegistry) error {
		for _, name := range []string{"processes", "assemblies"} {
			err := r.RegisterSpace(name, func(m *SpaceManifest) error {
				m.ParticipatorySpaces(func(_ context.Context, org Organization) ([]SpaceRecord, error) {
					return []SpaceRecord{{Manifest: name, OrganizationID: org.ID}}, nil
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	records, err := svc.ParticipatorySpaces(context.Background(), Organization{ID: "org"})
	if err != nil {
		t.Fatalf("participatory spaces: %v", err)
	}
	if len(records) != 2 || records[0].Manifest != "assemblies" || records[1].OrganizationID != "org" {
		t.Fatalf("unexpected records %+v", records)
	}
	if len(metrics.ops) != 1 || metrics.ops[0] != "participatory_spaces" || !metrics.success[0] {
		t.Fatalf("expected one successful observation, got %+v", metrics)
	}
}

func TestServiceSeedAll(t *testing.T) {
	var order []string
	status := &recordingStatus{}
	svc := NewService(WithEnvironment(Environment{Status: status, TestMode: func() bool { return true }}))
	boom := errors.New("boom")
	_, err := svc.InstallPlugin(testPlugin{name: "spaces", version: "1.0.0", register: func(r *PluginRegistry) error {
		for _, name := range []string{"b", "a", "c"} {
			if err := r.RegisterSpace(name, func(m *SpaceManifest) error {
				m.Seeds(func(context.Context) error {
					order = append(order, name)
					if name == "b" {
						return boom
					}
					return nil
				})
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if svc.Environment().Resources == nil {
		t.Fatalf("expected default resource registry")
	}
	err = svc.SeedAll(context.Background())
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "seed b") {
		t.Fatalf("expected seed failure from b, got %v", err)
	}
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("expected name-ordered seeding that stops on failure, got %v", order)
	}
	if len(status.lines) != 0 {
		t.Fatalf("expected no status lines in test mode, got %v", status.lines)
	}
	if err := svc.Seed(context.Background(), "missing"); !errors.Is(err, manifestapi.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceExports(t *testing.T) {
	svc := NewService()
	_, err := svc.InstallPlugin(testPlugin{name: "spaces", version: "1.0.0", register: func(r *PluginRegistry) error {
		return r.RegisterSpace("processes", func(m *SpaceManifest) error {
			m.Exports("processes", func(e *ExportManifest) error { e.IncludeInOpenData = true; return nil })
			m.Exports("processes", nil)
			m.Exports("steps", nil)
			return nil
		})
	}})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	got, err := svc.Exports("processes", "processes")
	if err != nil || len(got) != 2 {
		t.Fatalf("expected both duplicate exports, got %d %v", len(got), err)
	}
	if _, err := svc.Exports("processes", "missing"); !errors.Is(err, manifestapi.ErrNotFound) {
		t.Fatalf("expected missing export, got %v", err)
	}
	open, err := svc.OpenDataExports()
	if err != nil || len(open) != 1 || open[0].Manifest != "processes" {
		t.Fatalf("unexpected open data exports %+v %v", open, err)
	}
}

func TestServiceOptionsClock(t *testing.T) {
	fixed := time.Unix(123, 0).UTC()
	svc := NewService(WithClock(ClockFunc(func() time.Time { return fixed })), WithClock(nil), WithLogger(nil), WithMetrics(nil))
	if svc.clock.Now() != fixed {
		t.Fatalf("expected clock override to be used")
	}
	if _, ok := svc.logger.(noopLogger); !ok {
		t.Fatalf("expected nil logger to keep the default")
	}
}
