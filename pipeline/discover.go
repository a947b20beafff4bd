package pipeline

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Suffixes of files this tool writes next to the label images.
const (
	InstanceIDsSuffix = "_instanceIds.png"
	PanopticSuffix    = "_panoptic.png"
)

const DefaultLabelSuffix = ".png"

func derived(name string) bool {
	return strings.HasSuffix(name, InstanceIDsSuffix) || strings.HasSuffix(name, PanopticSuffix)
}

// Discover walks root, collects files ending in suffix and returns them
// sorted lexicographically. Derived files are skipped unless suffix asks for
// them explicitly.
func Discover(root, suffix string) ([]string, error) {
	if suffix == "" {
		suffix = DefaultLabelSuffix
	}
	wantDerived := derived(suffix)

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, suffix) {
			return nil
		}
		if !wantDerived && derived(name) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
