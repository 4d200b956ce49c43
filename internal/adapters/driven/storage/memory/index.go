package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an in-memory implementation of driven.VectorIndex
// using brute-force cosine search. Tests and ablation sweeps use it;
// its results must match the persistent backends exactly.
type VectorIndex struct {
	mu      sync.RWMutex
	entries map[string][]driven.IndexEntry // documentID -> entries
	order   []string                       // documentIDs in first-insertion order
	model   string
}

// NewVectorIndex creates a new in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		entries: make(map[string][]driven.IndexEntry),
	}
}

// ReplaceDocument atomically replaces all entries for a document.
// A replaced document re-enters at the end of the insertion order,
// the same as a delete followed by an insert.
func (x *VectorIndex) ReplaceDocument(_ context.Context, documentID string, entries []driven.IndexEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.remove(documentID)
	if len(entries) == 0 {
		return nil
	}
	x.order = append(x.order, documentID)
	stored := make([]driven.IndexEntry, len(entries))
	copy(stored, entries)
	x.entries[documentID] = stored
	return nil
}

// DeleteDocument removes all entries for a document.
func (x *VectorIndex) DeleteDocument(_ context.Context, documentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.remove(documentID)
	return nil
}

// Search finds the k most similar entries to the query vector. The
// filter applies before truncation; ties preserve insertion order.
func (x *VectorIndex) Search(_ context.Context, query []float32, k int, filter *domain.MetadataFilter) ([]driven.IndexHit, error) {
	if k <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var hits []driven.IndexHit
	for _, docID := range x.order {
		for _, entry := range x.entries[docID] {
			if !matchesFilter(entry, filter) {
				continue
			}
			hits = append(hits, driven.IndexHit{
				Chunk:      entry.Chunk,
				Filename:   entry.Filename,
				Type:       entry.Type,
				Similarity: cosineSimilarity(query, entry.Embedding),
			})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Stats reports corpus-level counters.
func (x *VectorIndex) Stats(_ context.Context) (*domain.IndexStats, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	stats := &domain.IndexStats{
		DocumentCount:  len(x.entries),
		EmbeddingModel: x.model,
	}
	seen := make(map[string]bool)
	for _, docID := range x.order {
		for _, entry := range x.entries[docID] {
			stats.ChunkCount++
			stats.TotalCharacters += len(entry.Chunk.Text)
			if entry.Filename != "" && !seen[entry.Filename] {
				seen[entry.Filename] = true
				stats.Sources = append(stats.Sources, entry.Filename)
			}
		}
	}
	sort.Strings(stats.Sources)
	return stats, nil
}

// EmbeddingModel returns the model the index was built with.
func (x *VectorIndex) EmbeddingModel(_ context.Context) (string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.model, nil
}

// SetEmbeddingModel records the embedding model used to build the index.
func (x *VectorIndex) SetEmbeddingModel(_ context.Context, model string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.model = model
	return nil
}

// Close releases resources.
func (x *VectorIndex) Close() error {
	return nil
}

// remove drops a document's entries and its slot in the insertion order.
// Callers must hold the write lock.
func (x *VectorIndex) remove(documentID string) {
	if _, ok := x.entries[documentID]; !ok {
		return
	}
	delete(x.entries, documentID)
	for i, id := range x.order {
		if id == documentID {
			x.order = append(x.order[:i], x.order[i+1:]...)
			break
		}
	}
}

// matchesFilter applies the metadata filter to one entry.
func matchesFilter(entry driven.IndexEntry, filter *domain.MetadataFilter) bool {
	if filter.Empty() {
		return true
	}
	if filter.Filename != "" && entry.Filename != filter.Filename {
		return false
	}
	if filter.Type != "" && entry.Type != filter.Type {
		return false
	}
	if filter.Section != "" && !strings.EqualFold(entry.Chunk.Section, filter.Section) {
		return false
	}
	return true
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
