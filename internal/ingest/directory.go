// Package ingest turns a local folder of case documents into a seedable case.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
	"github.com/joseph-ayodele/packet-underwriter/internal/repository"
)

// ReferencesFile holds the case's reference values when present in the root.
const ReferencesFile = "references.yaml"

// auxDir marks auxiliary documents inside a category folder.
const auxDir = "aux"

type FileResult struct {
	Path     string
	Category string
	Err      string
}

type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

// ScanOptions describe the case being assembled.
type ScanOptions struct {
	CaseID       string
	Counterparty string
	SkipHidden   bool
}

// ScanCaseDir walks root, where each first-level folder names a document
// category (invoice/, bank_statement/, 請求書/ ...). Files under an aux/
// subfolder get the auxiliary role. Unsupported files are reported in the
// results, not added.
func ScanCaseDir(root string, opts ScanOptions) (repository.FixtureCase, []FileResult, DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return repository.FixtureCase{}, nil, stats, errors.New("root path is required")
	}
	if strings.TrimSpace(opts.CaseID) == "" {
		return repository.FixtureCase{}, nil, stats, errors.New("case id is required")
	}

	fc := repository.FixtureCase{ID: opts.CaseID, Counterparty: opts.Counterparty}
	refs, err := loadReferences(filepath.Join(root, ReferencesFile))
	if err != nil {
		return fc, nil, stats, err
	}
	fc.References = refs

	var results []FileResult
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if path == root {
			return walkErr
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if opts.SkipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == ReferencesFile {
			return nil
		}

		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 2 {
			results = append(results, FileResult{Path: path, Err: "file is not inside a category folder"})
			stats.Failed++
			return nil
		}
		stats.Matched++
		cat, ok := constants.Canonicalize(parts[0])
		if !ok {
			results = append(results, FileResult{Path: path, Category: parts[0], Err: fmt.Sprintf("unknown category %q (want one of %s)", parts[0], strings.Join(constants.AsStringSlice(), ", "))})
			stats.Failed++
			return nil
		}
		name := d.Name()
		ct := contentTypeOf(name)
		if constants.MapContentType(ct, name) == "" {
			results = append(results, FileResult{Path: path, Category: string(cat), Err: "unsupported file type"})
			stats.Failed++
			return nil
		}
		role := string(entity.RoleMain)
		if len(parts) > 2 && strings.EqualFold(parts[1], auxDir) {
			role = string(entity.RoleAuxiliary)
		}
		fc.Attachments = append(fc.Attachments, repository.FixtureAttachment{
			Name:        strings.Join(parts[1:], "/"),
			ContentType: ct,
			Category:    string(cat),
			Role:        role,
			File:        rel,
		})
		results = append(results, FileResult{Path: path, Category: string(cat)})
		stats.Succeeded++
		return nil
	})
	if err != nil {
		return fc, results, stats, fmt.Errorf("walk: %w", err)
	}
	sort.SliceStable(fc.Attachments, func(i, j int) bool { return fc.Attachments[i].File < fc.Attachments[j].File })
	return fc, results, stats, nil
}

func loadReferences(path string) ([]repository.FixtureReference, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var refs []repository.FixtureReference
	if err := yaml.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return refs, nil
}

func contentTypeOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".heic":
		return "image/heic"
	case ".tif", ".tiff":
		return "image/tiff"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
		return ct
	}
	return "application/octet-stream"
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
