package exports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"agora/internal/blob"
	"agora/internal/core"
)

const keyPrefix = "exports"

// Artifacts lists stored artifacts of space, narrowed to export when it is
// non-empty, oldest first.
func (r *Runner) Artifacts(ctx context.Context, space, export string) (artifacts []Artifact, err error) {
	started := r.opts.clock.Now()
	defer func() {
		r.opts.metrics.Observe(ctx, "export_list", err == nil, r.opts.clock.Now().Sub(started))
	}()

	prefix, err := artifactPrefix(space, export)
	if err != nil {
		return nil, err
	}
	infos, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	for _, info := range infos {
		artifact, ok := artifactFromInfo(info)
		if !ok {
			continue
		}
		artifacts = append(artifacts, artifact)
	}
	sort.SliceStable(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// Artifact describes the stored artifact at key without reading its body.
func (r *Runner) Artifact(ctx context.Context, key string) (Artifact, error) {
	if err := checkArtifactKey(key); err != nil {
		return Artifact{}, err
	}
	info, err := r.store.Head(ctx, key)
	if err != nil {
		return Artifact{}, err
	}
	artifact, ok := artifactFromInfo(info)
	if !ok {
		return Artifact{}, fmt.Errorf("%s is not an export artifact", key)
	}
	return artifact, nil
}

// Open returns the artifact at key and its body. Callers close the reader.
func (r *Runner) Open(ctx context.Context, key string) (Artifact, io.ReadCloser, error) {
	if err := checkArtifactKey(key); err != nil {
		return Artifact{}, nil, err
	}
	info, body, err := r.store.Get(ctx, key)
	if err != nil {
		return Artifact{}, nil, err
	}
	artifact, ok := artifactFromInfo(info)
	if !ok {
		_ = body.Close()
		return Artifact{}, nil, fmt.Errorf("%s is not an export artifact", key)
	}
	return artifact, body, nil
}

// Prune deletes all but the newest keep artifacts of space, or of one export
// when export is non-empty, and returns what it removed.
func (r *Runner) Prune(ctx context.Context, space, export string, keep int) (removed []Artifact, err error) {
	started := r.opts.clock.Now()
	defer func() {
		r.opts.metrics.Observe(ctx, "export_prune", err == nil, r.opts.clock.Now().Sub(started))
	}()

	if keep < 0 {
		return nil, fmt.Errorf("keep must not be negative, got %d", keep)
	}
	artifacts, err := r.Artifacts(ctx, space, export)
	if err != nil {
		return nil, err
	}
	// keep counts per export.
	byExport := make(map[string][]Artifact)
	var order []string
	for _, a := range artifacts {
		if _, ok := byExport[a.Export]; !ok {
			order = append(order, a.Export)
		}
		byExport[a.Export] = append(byExport[a.Export], a)
	}
	for _, name := range order {
		group := byExport[name]
		if len(group) <= keep {
			continue
		}
		for _, a := range group[:len(group)-keep] {
			existed, err := r.store.Delete(ctx, a.Key)
			if err != nil {
				return removed, fmt.Errorf("delete %s: %w", a.Key, err)
			}
			if existed {
				removed = append(removed, a)
			}
		}
	}
	if len(removed) > 0 {
		r.opts.logger.InfoContext(ctx, "export artifacts pruned", "space", space, "export", export, "removed", len(removed))
	}
	return removed, nil
}

func artifactPrefix(space, export string) (string, error) {
	space, export = strings.TrimSpace(space), strings.TrimSpace(export)
	if space == "" {
		return "", errors.New("artifact listing requires a space")
	}
	if strings.Contains(space, "/") || strings.Contains(export, "/") {
		return "", fmt.Errorf("invalid artifact selector %q/%q", space, export)
	}
	if export == "" {
		return path.Join(keyPrefix, space) + "/", nil
	}
	return path.Join(keyPrefix, space, export) + "/", nil
}

func checkArtifactKey(key string) error {
	clean, err := blob.CleanKey(key)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(clean, keyPrefix+"/") {
		return fmt.Errorf("%s is not an export artifact", key)
	}
	return nil
}

// artifactFromInfo rebuilds an Artifact from a key of the form
// exports/<space>/<export>/<id>.<format> and the metadata written by Run.
func artifactFromInfo(info blob.Info) (Artifact, bool) {
	parts := strings.Split(info.Key, "/")
	if len(parts) != 4 || parts[0] != keyPrefix {
		return Artifact{}, false
	}
	ext := path.Ext(parts[3])
	format, err := core.ParseExportFormat(strings.TrimPrefix(ext, "."))
	if err != nil || ext == "" {
		return Artifact{}, false
	}
	rows, _ := strconv.Atoi(info.Metadata["rows"])
	return Artifact{
		ID:          strings.TrimSuffix(parts[3], ext),
		Space:       parts[1],
		Export:      parts[2],
		Format:      format,
		Key:         info.Key,
		ContentType: info.ContentType,
		SizeBytes:   info.Size,
		Rows:        rows,
		URL:         info.URL,
		CreatedAt:   info.LastModified,
	}, true
}
