// Package testutil provides helpers for asserting import boundaries between
// agora packages.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// InternalImportForbidden matches import paths under an internal/ tree.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal")
}

// UnderPrefix reports whether importPath equals prefix or lives below it.
func UnderPrefix(importPath, prefix string) bool {
	return importPath == prefix || strings.HasPrefix(importPath, prefix+"/")
}

// AssertNoDirectImports parses the non-test .go files in dir and fails when
// an import satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfViolations(t, "forbidden direct imports detected", reason, viols)
}

// AssertNoTransitiveImport loads pattern with its dependency graph and fails
// when any reachable package satisfies forbidden.
func AssertNoTransitiveImport(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	pkgs := load(t, packages.NeedName|packages.NeedImports|packages.NeedDeps, false, pattern)
	seen := make(map[string]struct{})
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		if forbidden(p.PkgPath) {
			seen[p.PkgPath] = struct{}{}
		}
	})
	failIfViolations(t, "forbidden transitive dependency detected", reason, keys(seen))
}

// AssertImportersConfined fails when a package matched by pattern imports
// target (or a package below it) without itself living under target or one
// of allowed.
func AssertImportersConfined(t testing.TB, pattern, target string, allowed ...string) {
	t.Helper()
	pkgs := load(t, packages.NeedName|packages.NeedImports, true, pattern)
	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if UnderPrefix(pkg.PkgPath, target) || underAny(pkg.PkgPath, allowed) {
			continue
		}
		for importPath := range pkg.Imports {
			if UnderPrefix(importPath, target) {
				seen[pkg.PkgPath+": "+importPath] = struct{}{}
			}
		}
	}
	failIfViolations(t, "forbidden imports of "+target, "import it through "+strings.Join(allowed, ", "), keys(seen))
}

func load(t testing.TB, mode packages.LoadMode, tests bool, pattern string) []*packages.Package {
	t.Helper()
	pkgs, err := packages.Load(&packages.Config{Mode: mode, Tests: tests}, pattern)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	return pkgs
}

func underAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if UnderPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, headline, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("%s (%s):\n%s", headline, reason, strings.Join(viols, "\n"))
	}
}
