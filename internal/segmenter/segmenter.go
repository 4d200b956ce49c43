// Package segmenter splits document text into overlapping chunks for
// embedding. Cuts prefer markdown structure: section boundaries first,
// then paragraphs, lines, and words, with a hard character cut as the
// last resort. Table rows are never split when the row fits in a chunk.
package segmenter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// boundaries are candidate cut points, tried in order. Earlier entries
// preserve more structure. The matched separator stays with the text
// that follows it, so headings open their own chunk.
var boundaries = []string{
	"\n\n## ",
	"\n\n### ",
	"\n\n",
	"\n",
	" ",
}

// Ensure Segmenter implements the port.
var _ driven.Segmenter = (*Segmenter)(nil)

// Segmenter splits document text into chunks.
type Segmenter struct {
	chunkSize int
	overlap   int
}

// Option configures the segmenter.
type Option func(*Segmenter)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(s *Segmenter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Segmenter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// New creates a new segmenter with the given options. Geometry is
// taken as given: callers validate that overlap is less than chunk
// size before constructing.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ChunkSize returns the configured chunk size in characters.
func (s *Segmenter) ChunkSize() int {
	return s.chunkSize
}

// Overlap returns the configured overlap in characters.
func (s *Segmenter) Overlap() int {
	return s.overlap
}

// Split returns the document's chunks in order. Each chunk's text is
// exactly the document span named by its offsets: concatenating every
// chunk's non-overlapping suffix reconstructs the original text.
func (s *Segmenter) Split(doc *domain.Document) []domain.Chunk {
	text := doc.Text
	if text == "" {
		return nil
	}

	estimated := len(text)/(s.chunkSize-s.overlap) + 1
	chunks := make([]domain.Chunk, 0, estimated)

	start := 0
	for ordinal := 0; ; ordinal++ {
		end := s.cut(text, start)
		span := text[start:end]

		chunks = append(chunks, domain.Chunk{
			ID:          uuid.New().String(),
			DocumentID:  doc.ID,
			Ordinal:     ordinal,
			Text:        span,
			StartOffset: start,
			EndOffset:   end,
			Tag:         dominantTag(span),
			Section:     Section(span),
		})

		if end == len(text) {
			break
		}

		next := end - s.overlap
		if next <= start {
			// Forced progress when overlap swallows a short cut.
			next = start + 1
		}
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}

	return chunks
}

// cut picks the end offset for a chunk starting at start.
func (s *Segmenter) cut(text string, start int) int {
	limit := start + s.chunkSize
	if limit >= len(text) {
		return len(text)
	}

	end := s.structuralCut(text, start, limit)
	return s.avoidRowSplit(text, start, end)
}

// structuralCut finds the latest structural boundary inside the window.
// A boundary only qualifies when it leaves the chunk at least half full
// and far enough past the overlap that the walk keeps progressing.
// When no boundary qualifies, the cut lands hard at the window limit,
// backed off to the nearest rune start.
func (s *Segmenter) structuralCut(text string, start, limit int) int {
	floor := start + s.chunkSize/2
	if min := start + s.overlap + 1; min > floor {
		floor = min
	}
	if floor >= limit {
		return hardCut(text, start, limit)
	}

	window := text[start:limit]
	for _, b := range boundaries {
		idx := strings.LastIndex(window, b)
		if idx < 0 {
			continue
		}
		if pos := start + idx; pos >= floor {
			return pos
		}
	}
	return hardCut(text, start, limit)
}

// hardCut backs a character-limit cut off to a rune boundary so a
// chunk never ends inside a multi-byte character.
func hardCut(text string, start, limit int) int {
	for limit > start+1 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return limit
}

// avoidRowSplit moves a cut back to the start of a markdown table row
// when the cut would land inside the row. Rows wider than the chunk
// size cannot fit anywhere and are split regardless.
func (s *Segmenter) avoidRowSplit(text string, start, end int) int {
	if text[end] == '\n' {
		// The cut sits on a line break; no row is split.
		return end
	}

	lineStart := strings.LastIndexByte(text[:end], '\n') + 1
	if lineStart <= start || text[lineStart] != '|' {
		return end
	}

	rowEnd := len(text)
	if i := strings.IndexByte(text[end:], '\n'); i >= 0 {
		rowEnd = end + i
	}
	if rowEnd-lineStart > s.chunkSize {
		return end
	}
	if lineStart <= start+s.overlap {
		// Moving back would stall the walk.
		return end
	}
	return lineStart
}

// dominantTag classifies a chunk by the structure holding most of its
// characters.
func dominantTag(span string) domain.ChunkTag {
	var heading, table, prose int
	for _, line := range strings.Split(span, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, "#"):
			heading += len(trimmed)
		case strings.HasPrefix(trimmed, "|"):
			table += len(trimmed)
		default:
			prose += len(trimmed)
		}
	}

	switch {
	case table > prose && table >= heading:
		return domain.ChunkTagTable
	case heading > prose && heading > table:
		return domain.ChunkTagHeading
	default:
		return domain.ChunkTagParagraph
	}
}

// sectionPatterns match markdown headings, most significant level first.
var sectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^##\s+(.+)$`),
	regexp.MustCompile(`(?m)^###\s+(.+)$`),
	regexp.MustCompile(`(?m)^####\s+(.+)$`),
}

// Section returns the first section heading found in the text,
// preferring higher-level headings. Returns empty string when the text
// carries no heading.
func Section(text string) string {
	for _, p := range sectionPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
