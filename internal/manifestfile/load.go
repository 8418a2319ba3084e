package manifestfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"agora/internal/ctxlog"
)

// ParseFile dispatches on the file extension: .hcl, .yaml or .yml.
func ParseFile(path string, src []byte) ([]Declaration, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return ParseHCL(src, path)
	case ".yaml", ".yml":
		return ParseYAML(src, path)
	default:
		return nil, fmt.Errorf("%s: unsupported manifest file extension", path)
	}
}

// LoadFiles reads and parses paths in the given order. A space name may be
// declared only once across all files.
func LoadFiles(ctx context.Context, paths ...string) ([]Declaration, error) {
	logger := ctxlog.FromContext(ctx)
	owners := make(map[string]string)
	var decls []Declaration
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read manifest file: %w", err)
		}
		parsed, err := ParseFile(path, src)
		if err != nil {
			return nil, err
		}
		for _, d := range parsed {
			if prev, ok := owners[d.Name]; ok {
				return nil, fmt.Errorf("space %s declared in both %s and %s", d.Name, prev, path)
			}
			owners[d.Name] = path
		}
		logger.Debug("manifest file loaded", "path", path, "spaces", len(parsed))
		decls = append(decls, parsed...)
	}
	return decls, nil
}

// LoadDir loads every .hcl, .yaml and .yml file directly inside dir in
// lexical order.
func LoadDir(ctx context.Context, dir string) ([]Declaration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read manifest dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".hcl", ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	decls, err := LoadFiles(ctx, paths...)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("manifests loaded", "dir", dir, "files", len(paths), "spaces", len(decls))
	return decls, nil
}
