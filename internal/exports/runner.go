// Package exports renders participatory space exports into the blob store,
// either synchronously through Runner or queued through Worker.
package exports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"

	"agora/internal/blob"
	"agora/internal/core"
	"agora/pkg/manifestapi"
)

// Catalog resolves export manifests. *core.Service satisfies it.
type Catalog interface {
	Exports(space, export string) ([]*core.ExportManifest, error)
	OpenDataExports() ([]*core.ExportManifest, error)
}

// Request selects the exports to run.
type Request struct {
	Space        string            `json:"space"`
	Export       string            `json:"export"`
	Organization core.Organization `json:"organization"`
	Format       core.ExportFormat `json:"format"`
	RequestedBy  string            `json:"requested_by,omitempty"`
}

// Artifact is one stored export file.
type Artifact struct {
	ID          string            `json:"id"`
	Space       string            `json:"space"`
	Export      string            `json:"export"`
	Format      core.ExportFormat `json:"format"`
	Key         string            `json:"key"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	Rows        int               `json:"rows"`
	URL         string            `json:"url,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Option configures a Runner or Worker.
type Option func(*options)

type options struct {
	clock   core.Clock
	logger  *slog.Logger
	metrics core.MetricsRecorder
}

func defaultOptions() options {
	return options{
		clock:   core.ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  slog.Default(),
		metrics: core.NoopMetrics{},
	}
}

// WithClock overrides the time source.
func WithClock(clock core.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the audit logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records run and job outcomes.
func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// Runner executes exports synchronously.
type Runner struct {
	catalog Catalog
	types   manifestapi.TypeLookup
	store   blob.Store
	opts    options
}

// NewRunner wires a runner. types resolves collection and serializer names.
func NewRunner(catalog Catalog, types manifestapi.TypeLookup, store blob.Store, opts ...Option) *Runner {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Runner{catalog: catalog, types: types, store: store, opts: o}
}

// Run produces one artifact per export manifest registered under
// req.Space/req.Export. An empty format means JSON.
func (r *Runner) Run(ctx context.Context, req Request) (artifacts []Artifact, err error) {
	started := r.opts.clock.Now()
	defer func() {
		r.opts.metrics.Observe(ctx, "export_run", err == nil, r.opts.clock.Now().Sub(started))
	}()

	format, manifests, err := r.resolve(req)
	if err != nil {
		return nil, err
	}
	for _, e := range manifests {
		artifact, err := r.export(ctx, e, req.Organization, format, req.RequestedBy)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// resolve checks the request without touching collections or storage.
func (r *Runner) resolve(req Request) (core.ExportFormat, []*core.ExportManifest, error) {
	if req.Space == "" || req.Export == "" {
		return "", nil, errors.New("export request requires space and export")
	}
	format, err := core.ParseExportFormat(string(req.Format))
	if err != nil {
		return "", nil, err
	}
	manifests, err := r.catalog.Exports(req.Space, req.Export)
	if err != nil {
		return "", nil, err
	}
	for _, e := range manifests {
		if !e.SupportsFormat(format) {
			return "", nil, fmt.Errorf("export %s/%s does not support format %s", req.Space, req.Export, format)
		}
	}
	return format, manifests, nil
}

// OpenData runs every export flagged for open data that supports format.
func (r *Runner) OpenData(ctx context.Context, org core.Organization, format core.ExportFormat) (artifacts []Artifact, err error) {
	started := r.opts.clock.Now()
	defer func() {
		r.opts.metrics.Observe(ctx, "export_open_data", err == nil, r.opts.clock.Now().Sub(started))
	}()

	format, err = core.ParseExportFormat(string(format))
	if err != nil {
		return nil, err
	}
	manifests, err := r.catalog.OpenDataExports()
	if err != nil {
		return nil, err
	}
	for _, e := range manifests {
		if !e.SupportsFormat(format) {
			r.opts.logger.Debug("open data export skipped", "space", e.Manifest, "export", e.Name, "format", format)
			continue
		}
		artifact, err := r.export(ctx, e, org, format, "open_data")
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

func (r *Runner) export(ctx context.Context, e *core.ExportManifest, org core.Organization, format core.ExportFormat, requestedBy string) (Artifact, error) {
	items, err := e.Items(ctx, r.types, org)
	if err != nil {
		return Artifact{}, fmt.Errorf("collect %s/%s: %w", e.Manifest, e.Name, err)
	}
	serializer, err := e.Serializer(r.types)
	if err != nil {
		return Artifact{}, fmt.Errorf("export %s/%s: %w", e.Manifest, e.Name, err)
	}
	rows, err := serialize(items, serializer)
	if err != nil {
		return Artifact{}, fmt.Errorf("export %s/%s: %w", e.Manifest, e.Name, err)
	}
	payload, contentType, err := render(format, rows)
	if err != nil {
		return Artifact{}, err
	}

	id := uuid.NewString()
	key := path.Join(keyPrefix, e.Manifest, e.Name, id+"."+string(format))
	info, err := r.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"space":        e.Manifest,
			"export":       e.Name,
			"organization": org.ID,
			"requested_by": requestedBy,
			"rows":         strconv.Itoa(len(rows)),
		},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store artifact: %w", err)
	}
	url := info.URL
	if url == "" {
		if signed, err := r.store.PresignURL(ctx, info.Key, blob.SignedURLOptions{}); err == nil {
			url = signed
		}
	}
	return Artifact{
		ID:          id,
		Space:       e.Manifest,
		Export:      e.Name,
		Format:      format,
		Key:         info.Key,
		ContentType: contentType,
		SizeBytes:   int64(len(payload)),
		Rows:        len(rows),
		URL:         url,
		CreatedAt:   r.opts.clock.Now(),
	}, nil
}
