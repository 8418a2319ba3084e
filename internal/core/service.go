package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"agora/pkg/manifestapi"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the subset of *slog.Logger the service uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type serviceOptions struct {
	env     Environment
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		env:     Environment{Resources: NewMemoryResourceRegistry()},
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		metrics: NoopMetrics{},
	}
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

// WithEnvironment sets the collaborators bound to every installed manifest.
// A nil resource registry is replaced with an in-memory one.
func WithEnvironment(env Environment) ServiceOption {
	return func(o *serviceOptions) {
		if env.Resources == nil {
			env.Resources = NewMemoryResourceRegistry()
		}
		o.env = env
	}
}

// WithClock overrides the clock used for timing.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// Service is the host-side registry of installed participatory spaces.
type Service struct {
	env     Environment
	clock   Clock
	logger  Logger
	metrics MetricsRecorder

	mu      sync.RWMutex
	plugins map[string]PluginMetadata
	spaces  map[string]*SpaceManifest
	owners  map[string]string
}

// NewService constructs an empty service.
func NewService(opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		env:     o.env,
		clock:   o.clock,
		logger:  o.logger,
		metrics: o.metrics,
		plugins: make(map[string]PluginMetadata),
		spaces:  make(map[string]*SpaceManifest),
		owners:  make(map[string]string),
	}
}

// Environment returns the collaborators bound to installed manifests.
func (s *Service) Environment() Environment { return s.env }

// InstallPlugin registers the plugin's spaces. Installation is all or
// nothing: on error no space of the plugin is visible.
func (s *Service) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, errors.New("plugin is nil")
	}
	name := strings.TrimSpace(plugin.Name())
	if name == "" {
		return PluginMetadata{}, errors.New("plugin name required")
	}
	if _, err := semver.NewVersion(plugin.Version()); err != nil {
		return PluginMetadata{}, fmt.Errorf("plugin %s: invalid version %q: %w", name, plugin.Version(), err)
	}

	s.mu.RLock()
	_, installed := s.plugins[name]
	s.mu.RUnlock()
	if installed {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", name)
	}

	registry := NewPluginRegistry(s.env)
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, fmt.Errorf("plugin %s: %w", name, err)
	}
	names, err := s.adopt(name, registry.Spaces(), registry)
	if err != nil {
		return PluginMetadata{}, err
	}
	meta := PluginMetadata{Name: name, Version: plugin.Version(), Spaces: names}

	s.mu.Lock()
	s.plugins[name] = meta
	s.mu.Unlock()
	s.logger.Info("plugin installed", "plugin", name, "version", meta.Version, "spaces", names)
	return meta, nil
}

// InstallManifests registers manifests that did not come from a plugin, such
// as those loaded from declaration files. source is recorded as their owner.
func (s *Service) InstallManifests(source string, manifests ...*SpaceManifest) error {
	names, err := s.adopt(source, manifests, nil)
	if err != nil {
		return err
	}
	s.logger.Info("manifests installed", "source", source, "spaces", names)
	return nil
}

// adopt publishes manifests, and the resources staged in registry when it is
// non-nil, only after every check passes.
func (s *Service) adopt(owner string, manifests []*SpaceManifest, registry *PluginRegistry) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(manifests))
	seen := make(map[string]struct{}, len(manifests))
	for _, m := range manifests {
		if m == nil {
			continue
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if prev, ok := s.owners[m.Name()]; ok {
			return nil, fmt.Errorf("space %s already registered by %s", m.Name(), prev)
		}
		if _, ok := seen[m.Name()]; ok {
			return nil, fmt.Errorf("space %s declared twice by %s", m.Name(), owner)
		}
		seen[m.Name()] = struct{}{}
		names = append(names, m.Name())
	}
	if registry != nil {
		if err := registry.checkResources(); err != nil {
			return nil, fmt.Errorf("plugin %s: %w", owner, err)
		}
		if err := registry.commitResources(); err != nil {
			return nil, fmt.Errorf("plugin %s: %w", owner, err)
		}
	}
	for _, m := range manifests {
		if m == nil {
			continue
		}
		s.spaces[m.Name()] = m
		s.owners[m.Name()] = owner
	}
	sort.Strings(names)
	return names, nil
}

// Space returns the installed manifest named name.
func (s *Service) Space(name string) (*SpaceManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.spaces[strings.TrimSpace(name)]
	if !ok {
		return nil, manifestapi.NotFound{Kind: "participatory space", Key: name}
	}
	return m, nil
}

// Spaces returns installed manifests sorted by name.
func (s *Service) Spaces() []*SpaceManifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SpaceManifest, 0, len(s.spaces))
	for _, m := range s.spaces {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// RegisteredPlugins returns metadata for installed plugins sorted by name.
func (s *Service) RegisteredPlugins() []PluginMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		meta.Spaces = append([]string(nil), meta.Spaces...)
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParticipatorySpaces lists the organization's spaces across every installed
// manifest, grouped by manifest name.
func (s *Service) ParticipatorySpaces(ctx context.Context, org Organization) (records []SpaceRecord, err error) {
	defer s.observe(ctx, "participatory_spaces", s.clock.Now(), &err)
	for _, m := range s.Spaces() {
		found, qerr := m.Spaces(ctx, org)
		if qerr != nil {
			return nil, fmt.Errorf("space %s: %w", m.Name(), qerr)
		}
		records = append(records, found...)
	}
	return records, nil
}

// Seed runs the seed procedure of one space.
func (s *Service) Seed(ctx context.Context, name string) (err error) {
	defer s.observe(ctx, "seed", s.clock.Now(), &err)
	m, err := s.Space(name)
	if err != nil {
		return err
	}
	if err := m.Seed(ctx); err != nil {
		return fmt.Errorf("seed %s: %w", m.Name(), err)
	}
	return nil
}

// SeedAll seeds every space in name order and stops at the first failure.
func (s *Service) SeedAll(ctx context.Context) error {
	for _, m := range s.Spaces() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Seed(ctx, m.Name()); err != nil {
			return err
		}
	}
	return nil
}

// Exports returns the exports of space named export. A space may register
// several exports under one name; all are returned in registration order.
func (s *Service) Exports(space, export string) ([]*ExportManifest, error) {
	m, err := s.Space(space)
	if err != nil {
		return nil, err
	}
	all, err := m.ExportManifests()
	if err != nil {
		return nil, fmt.Errorf("space %s: %w", m.Name(), err)
	}
	var out []*ExportManifest
	for _, e := range all {
		if e.Name == export {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, manifestapi.NotFound{Kind: "export", Key: space + "/" + export}
	}
	return out, nil
}

// OpenDataExports returns every export flagged for open data, ordered by
// space name then registration order.
func (s *Service) OpenDataExports() ([]*ExportManifest, error) {
	var out []*ExportManifest
	for _, m := range s.Spaces() {
		all, err := m.ExportManifests()
		if err != nil {
			return nil, fmt.Errorf("space %s: %w", m.Name(), err)
		}
		for _, e := range all {
			if e.IncludeInOpenData {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (s *Service) observe(ctx context.Context, operation string, started time.Time, errp *error) {
	err := *errp
	duration := s.clock.Now().Sub(started)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.logger.Warn("operation failed", "operation", operation, "error", err)
		return
	}
	s.logger.Debug("operation completed", "operation", operation, "duration", duration)
}
