// Package file loads policy documents from the local filesystem.
//
// Markdown and plain text pass through directly; PDFs must be converted
// to text by an external tool before ingestion. Markdown documents carry
// a conventional header block (title heading plus **Version:**,
// **Effective Date:** and **Department:** lines) that is extracted into
// document metadata.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

// Ensure Loader implements the interface.
var _ driven.DocumentLoader = (*Loader)(nil)

// Header lines recognised in markdown policy documents.
var (
	titlePattern      = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	versionPattern    = regexp.MustCompile(`(?m)\*\*Version:\*\*\s+(.+)$`)
	effectivePattern  = regexp.MustCompile(`(?m)\*\*Effective Date:\*\*\s+(.+)$`)
	departmentPattern = regexp.MustCompile(`(?m)\*\*Department:\*\*\s+(.+)$`)
)

// Loader reads policy files from disk.
type Loader struct{}

// NewLoader creates a filesystem document loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Glob expands a doublestar pattern into matching file paths, sorted.
// A literal path must exist: a file is returned as-is and a directory
// expands to the loadable files directly inside it.
func (l *Loader) Glob(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		info, err := os.Stat(pattern)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return []string{pattern}, nil
		}
		return globMatchesInDir(pattern)
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}

	//nolint:prealloc // directories drop out of the match list
	var paths []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		paths = append(paths, m)
	}
	sort.Strings(paths)
	return paths, nil
}

// Load reads one file and extracts its text and header metadata.
func (l *Loader) Load(ctx context.Context, path string) (*driven.LoadedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return nil, fmt.Errorf("%w: %s (convert the PDF to markdown or text first)",
			domain.ErrUnsupportedFormat, path)
	}
	if !loadableExt(ext) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	filename := filepath.Base(path)
	loaded := &driven.LoadedFile{
		Path:     path,
		Filename: filename,
		Type:     domain.DocumentTypeForFilename(filename),
		Text:     string(data),
	}
	if loaded.Type == domain.DocumentTypeMarkdown {
		extractHeader(loaded)
	}
	return loaded, nil
}

// globMatchesInDir lists the loadable files directly inside dir, the way
// pointing the tool at a policies directory is expected to behave.
func globMatchesInDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	//nolint:prealloc // most directory entries are usually not loadable
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if loadableExt(strings.ToLower(filepath.Ext(e.Name()))) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// loadableExt reports whether the loader can extract text from files
// with the given extension.
func loadableExt(ext string) bool {
	switch ext {
	case ".md", ".markdown", ".txt", ".text":
		return true
	default:
		return false
	}
}

// extractHeader pulls title, version, effective date, and department
// from the document's header lines. Missing lines leave fields empty.
func extractHeader(loaded *driven.LoadedFile) {
	if m := titlePattern.FindStringSubmatch(loaded.Text); m != nil {
		loaded.Title = strings.TrimSpace(m[1])
	}
	if m := versionPattern.FindStringSubmatch(loaded.Text); m != nil {
		loaded.Version = strings.TrimSpace(m[1])
	}
	if m := effectivePattern.FindStringSubmatch(loaded.Text); m != nil {
		loaded.EffectiveDate = strings.TrimSpace(m[1])
	}
	if m := departmentPattern.FindStringSubmatch(loaded.Text); m != nil {
		loaded.Department = strings.TrimSpace(m[1])
	}
}
