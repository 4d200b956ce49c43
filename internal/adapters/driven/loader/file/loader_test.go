package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

// --- Test helpers ---

const sampleManual = `# Credit Scoring Manual

**Version:** 3.2
**Effective Date:** January 2026
**Department:** Credit Risk Management

## Credit Score Requirements

### Mortgage Loans
- Conventional: Minimum 620
- FHA: Minimum 580 (with 3.5% down payment)
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// --- Tests ---

func TestLoader_ImplementsInterface(t *testing.T) {
	var _ driven.DocumentLoader = (*Loader)(nil)
}

func TestLoader_Glob_LiteralFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "manual.md", sampleManual)
	loader := NewLoader()

	paths, err := loader.Glob(path)

	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)
}

func TestLoader_Glob_LiteralFileMissing(t *testing.T) {
	loader := NewLoader()

	_, err := loader.Glob(filepath.Join(t.TempDir(), "missing.md"))

	assert.Error(t, err)
}

func TestLoader_Glob_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "underwriting_policies.md", sampleManual)
	writeFile(t, dir, "credit_scoring_manual.md", sampleManual)
	writeFile(t, dir, "notes.txt", "plain text policy notes")
	writeFile(t, dir, "report.pdf", "%PDF-1.4")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0700))
	loader := NewLoader()

	paths, err := loader.Glob(dir)

	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "credit_scoring_manual.md"),
		filepath.Join(dir, "notes.txt"),
		filepath.Join(dir, "underwriting_policies.md"),
	}, paths)
}

func TestLoader_Glob_Pattern(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "policies", "risk"), 0700))
	writeFile(t, dir, "top.md", sampleManual)
	writeFile(t, filepath.Join(dir, "policies"), "a.md", sampleManual)
	writeFile(t, filepath.Join(dir, "policies", "risk"), "b.md", sampleManual)
	loader := NewLoader()

	paths, err := loader.Glob(filepath.Join(dir, "policies", "**", "*.md"))

	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "policies", "a.md"),
		filepath.Join(dir, "policies", "risk", "b.md"),
	}, paths)
}

func TestLoader_Glob_PatternNoMatches(t *testing.T) {
	loader := NewLoader()

	paths, err := loader.Glob(filepath.Join(t.TempDir(), "*.md"))

	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLoader_Glob_PatternSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.md"), 0700))
	writeFile(t, dir, "real.md", sampleManual)
	loader := NewLoader()

	paths, err := loader.Glob(filepath.Join(dir, "*.md"))

	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "real.md")}, paths)
}

func TestLoader_Glob_BadPattern(t *testing.T) {
	loader := NewLoader()

	_, err := loader.Glob("policies/[")

	assert.Error(t, err)
}

func TestLoader_Load_Markdown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "credit_scoring_manual.md", sampleManual)
	loader := NewLoader()

	loaded, err := loader.Load(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, path, loaded.Path)
	assert.Equal(t, "credit_scoring_manual.md", loaded.Filename)
	assert.Equal(t, domain.DocumentTypeMarkdown, loaded.Type)
	assert.Equal(t, sampleManual, loaded.Text)
	assert.Equal(t, "Credit Scoring Manual", loaded.Title)
	assert.Equal(t, "3.2", loaded.Version)
	assert.Equal(t, "January 2026", loaded.EffectiveDate)
	assert.Equal(t, "Credit Risk Management", loaded.Department)
}

func TestLoader_Load_MarkdownWithoutHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plain.md", "Just a paragraph with no header block.")
	loader := NewLoader()

	loaded, err := loader.Load(context.Background(), path)

	require.NoError(t, err)
	assert.Empty(t, loaded.Title)
	assert.Empty(t, loaded.Version)
	assert.Empty(t, loaded.EffectiveDate)
	assert.Empty(t, loaded.Department)
}

func TestLoader_Load_TitleUsesFirstHeading(t *testing.T) {
	dir := t.TempDir()
	content := "# First Title\n\nBody.\n\n# Second Title\n"
	path := writeFile(t, dir, "doc.md", content)
	loader := NewLoader()

	loaded, err := loader.Load(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, "First Title", loaded.Title)
}

func TestLoader_Load_PlainText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "Reserve requirements: 6 months for investment properties.")
	loader := NewLoader()

	loaded, err := loader.Load(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, domain.DocumentTypeText, loaded.Type)
	assert.Empty(t, loaded.Title)
}

func TestLoader_Load_PDFUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scan.pdf", "%PDF-1.4")
	loader := NewLoader()

	_, err := loader.Load(context.Background(), path)

	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "convert the PDF")
}

func TestLoader_Load_UnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "data.bin", "binary")
	loader := NewLoader()

	_, err := loader.Load(context.Background(), path)

	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestLoader_Load_MissingFile(t *testing.T) {
	loader := NewLoader()

	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.md"))

	assert.Error(t, err)
}

func TestLoader_Load_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.md", sampleManual)
	loader := NewLoader()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, path)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_Load_CRLFHeaderLines(t *testing.T) {
	dir := t.TempDir()
	content := "# Underwriting Policies\r\n\r\n**Version:** 2.0\r\n**Department:** Underwriting\r\n"
	path := writeFile(t, dir, "underwriting.md", content)
	loader := NewLoader()

	loaded, err := loader.Load(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, "Underwriting Policies", loaded.Title)
	assert.Equal(t, "2.0", loaded.Version)
	assert.Equal(t, "Underwriting", loaded.Department)
}
