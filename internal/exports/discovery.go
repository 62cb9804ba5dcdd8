// Package exports discovers the layout of a staged export bundle: the
// hierarchy file plus per-module requirement and test CSVs. Discovery only;
// CSV contents are the site generator's concern.
package exports

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/reqsite/internal/logfields"
)

const (
	hierarchyFileName    = "hierarchy.yaml"
	requirementsFileName = "requirements.csv"
	testsFileName        = "tests.csv"
)

// Set is the discovered layout of one staged export bundle.
type Set struct {
	Root             string
	HierarchyPath    string   // empty when no hierarchy file was found
	RequirementFiles []string // relative paths, sorted
	TestFiles        []string // relative paths, sorted
	Modules          []Module // parsed from the hierarchy file when present
}

// Discover walks the staging root for the known export file names
// (case-insensitive, recursive). Unreadable subtrees are skipped with a
// warning since collection itself is non-fatal.
func Discover(root string) (*Set, error) {
	set := &Set{Root: root}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Skipping unreadable path during export discovery", logfields.Path(path), logfields.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		switch strings.ToLower(d.Name()) {
		case hierarchyFileName:
			// The generator reads only the root-level hierarchy, so a root
			// file always wins; nested copies are a fallback.
			if filepath.Dir(rel) == "." {
				set.HierarchyPath = path
			} else if set.HierarchyPath == "" {
				set.HierarchyPath = path
			}
		case requirementsFileName:
			set.RequirementFiles = append(set.RequirementFiles, rel)
		case testsFileName:
			set.TestFiles = append(set.TestFiles, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(set.RequirementFiles)
	sort.Strings(set.TestFiles)

	if set.HierarchyPath != "" {
		modules, err := LoadHierarchy(set.HierarchyPath)
		if err != nil {
			slog.Warn("Failed to parse hierarchy file", logfields.Path(set.HierarchyPath), logfields.Error(err))
		} else {
			set.Modules = modules
		}
	}
	return set, nil
}

// MissingModuleFiles reports modules from the hierarchy whose export
// directory lacks a requirements or tests CSV. Purely informational.
func (s *Set) MissingModuleFiles() []string {
	reqDirs := make(map[string]struct{}, len(s.RequirementFiles))
	for _, f := range s.RequirementFiles {
		reqDirs[dirKey(f)] = struct{}{}
	}
	testDirs := make(map[string]struct{}, len(s.TestFiles))
	for _, f := range s.TestFiles {
		testDirs[dirKey(f)] = struct{}{}
	}

	var missing []string
	for _, m := range s.Modules {
		key := strings.ToLower(m.Abbrev)
		if _, ok := reqDirs[key]; !ok {
			missing = append(missing, m.Abbrev+": "+requirementsFileName)
		}
		if _, ok := testDirs[key]; !ok {
			missing = append(missing, m.Abbrev+": "+testsFileName)
		}
	}
	return missing
}

// dirKey normalizes a relative CSV path to its module directory name.
func dirKey(rel string) string {
	return strings.ToLower(filepath.Base(filepath.Dir(rel)))
}
