package indexer

import (
	"path/filepath"
	"sort"

	"github.com/dshills/repoindex/internal/discovery"
	"github.com/dshills/repoindex/internal/fingerprint"
	"github.com/dshills/repoindex/pkg/types"
)

// ChangedFile is a discovered file that needs chunking and embedding.
type ChangedFile struct {
	File        discovery.File
	Fingerprint string
	// Previous is the manifest entry being replaced; nil for added files.
	Previous *types.IndexedFile
}

// Changes is the outcome of comparing a discovery pass with a manifest.
// Every discovered path lands in exactly one of Added, Updated, Unchanged or
// Unreadable; Removed holds manifest paths that were not discovered.
type Changes struct {
	Added      []ChangedFile
	Updated    []ChangedFile
	Removed    []string
	Unchanged  []types.IndexedFile
	Unreadable []types.FailedFile
}

// Changed returns Added followed by Updated.
func (c Changes) Changed() []ChangedFile {
	out := make([]ChangedFile, 0, len(c.Added)+len(c.Updated))
	out = append(out, c.Added...)
	return append(out, c.Updated...)
}

// Classify fingerprints every discovered file and compares it with the
// manifest entry for the same relative path. Only content is compared;
// timestamps never affect the outcome. A file that cannot be read is
// reported as Unreadable and is not treated as removed.
func Classify(files []discovery.File, manifestFiles map[string]types.IndexedFile, root string) Changes {
	var c Changes
	seen := make(map[string]bool, len(files))

	for _, f := range files {
		seen[f.RelativePath] = true

		path := f.Path
		if path == "" {
			path = filepath.Join(root, filepath.FromSlash(f.RelativePath))
			f.Path = path
		}

		info, err := fingerprint.File(path)
		if err != nil {
			c.Unreadable = append(c.Unreadable, types.FailedFile{Path: f.RelativePath, Error: err.Error()})
			continue
		}

		prev, ok := manifestFiles[f.RelativePath]
		switch {
		case !ok:
			c.Added = append(c.Added, ChangedFile{File: f, Fingerprint: info.Fingerprint})
		case prev.Fingerprint != info.Fingerprint:
			prev := prev
			c.Updated = append(c.Updated, ChangedFile{File: f, Fingerprint: info.Fingerprint, Previous: &prev})
		default:
			c.Unchanged = append(c.Unchanged, prev)
		}
	}

	for rel := range manifestFiles {
		if !seen[rel] {
			c.Removed = append(c.Removed, rel)
		}
	}
	sort.Strings(c.Removed)

	return c
}
