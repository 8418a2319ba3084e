package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"agora/internal/blob"
	"agora/internal/config"
	"agora/internal/core"
	"agora/internal/ctxlog"
	"agora/internal/exports"
	"agora/internal/manifestfile"
	"agora/internal/persistence"
	"agora/pkg/manifestapi"
	"agora/plugins/assemblies"
	"agora/plugins/processes"
)

// typedPlugin is a plugin that contributes entries to the type table.
type typedPlugin interface {
	core.Plugin
	RegisterTypes(table *manifestapi.TypeTable) error
}

// app is the wired host shared by the subcommands.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    core.SpaceStore
	blobs    blob.Store
	types    *manifestapi.TypeTable
	metrics  *prometheus.Registry
	recorder core.MetricsRecorder
	service  *core.Service
}

func bootstrap(ctx context.Context, configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := ctxlog.New(cfg.Log.Level, cfg.Log.Format, logOut)
	ctx = ctxlog.WithLogger(ctx, logger)

	a := &app{cfg: cfg, logger: logger, types: manifestapi.NewTypeTable(), metrics: prometheus.NewRegistry()}
	a.store, err = persistence.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open space store: %w", err)
	}
	if err := a.wire(ctx); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	var err error
	a.blobs, err = blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	recorder, err := core.NewPrometheusMetricsRecorder(a.metrics, "agora")
	if err != nil {
		return err
	}
	a.recorder = recorder

	orgs := a.organizations()
	plugins := []typedPlugin{
		assemblies.New(a.store, orgs...),
		processes.New(a.store, orgs...),
	}
	for _, p := range plugins {
		if err := p.RegisterTypes(a.types); err != nil {
			return fmt.Errorf("plugin %s types: %w", p.Name(), err)
		}
	}

	a.service = core.NewService(
		core.WithEnvironment(core.Environment{
			Types:    a.types,
			Status:   core.NewLogStatusWriter(a.logger),
			TestMode: a.cfg.TestMode,
		}),
		core.WithLogger(a.logger),
		core.WithMetrics(recorder),
	)
	for _, p := range plugins {
		if _, err := a.service.InstallPlugin(p); err != nil {
			return err
		}
	}

	if dir := a.cfg.Manifests.Dir; dir != "" {
		decls, err := manifestfile.LoadDir(ctx, dir)
		if err != nil {
			return err
		}
		manifests, err := manifestfile.Manifests(decls, a.service.Environment())
		if err != nil {
			return err
		}
		if err := a.service.InstallManifests(dir, manifests...); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) organizations() []core.Organization {
	orgs := make([]core.Organization, 0, len(a.cfg.Organizations))
	for _, id := range a.cfg.Organizations {
		orgs = append(orgs, core.Organization{ID: id})
	}
	return orgs
}

func (a *app) runner() *exports.Runner {
	return exports.NewRunner(a.service, a.types, a.blobs,
		exports.WithLogger(a.logger),
		exports.WithMetrics(a.recorder),
	)
}

// Close releases the space store.
func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
