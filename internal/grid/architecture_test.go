package grid

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestGridDependsOnlyOnDomain keeps the synchronization engine free of
// storage, transport and service concerns: it may import the domain contracts
// and nothing else from this module. Everything it needs from a backend
// arrives through domain.DataSource.
func TestGridDependsOnlyOnDomain(t *testing.T) {
	forbidden := []string{
		"forestcore/internal/infra",
		"forestcore/internal/adapters",
		"forestcore/internal/core",
		"forestcore/internal/blob",
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "forestcore/internal/grid/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		for importPath := range pkg.Imports {
			for _, prefix := range forbidden {
				if importPath == prefix || strings.HasPrefix(importPath, prefix+"/") {
					seen[pkg.PkgPath+": "+importPath] = struct{}{}
				}
			}
		}
	}

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("grid engine imports a layered-off package: %s", v)
		}
		t.Fatalf("found %d forbidden imports in the grid engine", len(violations))
	}
}
