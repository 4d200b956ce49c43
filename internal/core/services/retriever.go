package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
	"github.com/ancora-labs/ancora/internal/logger"
)

// Rerank boost weights. Section-heading term matches weigh more than
// shared numerals because headings name the policy area being asked
// about.
const (
	sectionTermBoost  = 0.05
	sharedNumberBoost = 0.03
)

// mmrLambda weighs redundancy against relevance in diversified
// selection. 0 keeps pure relevance ordering; 1 ignores relevance.
const mmrLambda = 0.3

// numeralPattern matches bare numerals for the rerank overlap boost.
var numeralPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Retriever embeds a question and searches the vector index, with an
// optional heuristic rerank and diversity selection on top. It refuses
// to search an index built with a different embedding model.
type Retriever struct {
	index     driven.VectorIndex
	embedder  driven.EmbeddingService
	topK      int
	threshold float64
}

// NewRetriever creates a retriever with defaults taken from settings.
func NewRetriever(index driven.VectorIndex, embedder driven.EmbeddingService, settings domain.Settings) *Retriever {
	return &Retriever{
		index:     index,
		embedder:  embedder,
		topK:      settings.TopK,
		threshold: settings.SimilarityThreshold,
	}
}

// Retrieve returns the chunks most relevant to the question, ordered by
// rank. Zero or negative K falls back to the configured default. A
// negative threshold falls back to the configured default; zero
// disables the cutoff.
func (r *Retriever) Retrieve(ctx context.Context, question string, opts domain.RetrieveOptions) ([]domain.RetrievedItem, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuery
	}

	k := opts.K
	if k <= 0 {
		k = r.topK
	}
	threshold := opts.Threshold
	if threshold < 0 {
		threshold = r.threshold
	}

	if err := r.checkEmbeddingModel(ctx); err != nil {
		return nil, err
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	// Over-fetch so the rerank and diversity passes have candidates to
	// work with beyond the first k.
	fetch := k
	switch {
	case opts.Diversify:
		fetch = k * 3
	case opts.Rerank:
		fetch = k * 2
	}

	hits, err := r.index.Search(ctx, vector, fetch, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	items := make([]domain.RetrievedItem, 0, len(hits))
	for _, hit := range hits {
		if threshold > 0 && hit.Similarity < threshold {
			continue
		}
		items = append(items, domain.RetrievedItem{
			Chunk:    hit.Chunk,
			Document: hit.Filename,
			Type:     hit.Type,
			Score:    hit.Similarity,
		})
	}
	logger.Debug("Retrieved %d of %d candidates above threshold %.2f", len(items), len(hits), threshold)

	if opts.Rerank {
		rerank(question, items)
	}
	if opts.Diversify {
		items = diversify(items, k)
	}
	if len(items) > k {
		items = items[:k]
	}
	for i := range items {
		items[i].Rank = i + 1
	}
	return items, nil
}

// checkEmbeddingModel guards against querying an index built with a
// different embedding model, which would produce silently meaningless
// similarities.
func (r *Retriever) checkEmbeddingModel(ctx context.Context) error {
	stored, err := r.index.EmbeddingModel(ctx)
	if err != nil {
		return fmt.Errorf("reading index embedding model: %w", err)
	}
	current := r.embedder.ModelName()
	if stored != "" && stored != current {
		return fmt.Errorf("%w: index built with %q, configured model is %q",
			domain.ErrEmbeddingMismatch, stored, current)
	}
	return nil
}

// rerank boosts candidates whose section heading contains question
// terms and whose text shares numerals with the question, then reorders
// by the boosted score. Boosts are additive; the result is capped at 1.
func rerank(question string, items []domain.RetrievedItem) {
	terms := strings.Fields(strings.ToLower(question))
	queryNumbers := numeralSet(question)

	for i := range items {
		boost := 0.0
		section := strings.ToLower(items[i].Chunk.Section)
		for _, term := range terms {
			if strings.Contains(section, term) {
				boost += sectionTermBoost
			}
		}
		if len(queryNumbers) > 0 {
			for n := range numeralSet(items[i].Chunk.Text) {
				if _, ok := queryNumbers[n]; ok {
					boost += sharedNumberBoost
				}
			}
		}
		score := items[i].Score + boost
		if score > 1.0 {
			score = 1.0
		}
		items[i].RerankScore = score
	}

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].EffectiveScore() > items[b].EffectiveScore()
	})
}

// diversify selects up to k items by maximal marginal relevance: the
// top candidate seeds the selection, then each pick maximises relevance
// minus its worst-case word overlap with what is already selected.
func diversify(items []domain.RetrievedItem, k int) []domain.RetrievedItem {
	if k <= 0 {
		return nil
	}
	if len(items) <= 1 || k == 1 {
		if len(items) > k {
			return items[:k]
		}
		return items
	}

	selected := make([]domain.RetrievedItem, 0, k)
	selected = append(selected, items[0])
	remaining := make([]domain.RetrievedItem, len(items)-1)
	copy(remaining, items[1:])

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := mmrScore(remaining[0], selected)
		for i := 1; i < len(remaining); i++ {
			if score := mmrScore(remaining[i], selected); score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func mmrScore(candidate domain.RetrievedItem, selected []domain.RetrievedItem) float64 {
	redundancy := 0.0
	words := tokenSet(candidate.Chunk.Text)
	for _, s := range selected {
		if j := jaccard(words, tokenSet(s.Chunk.Text)); j > redundancy {
			redundancy = j
		}
	}
	return (1-mmrLambda)*candidate.EffectiveScore() - mmrLambda*redundancy
}

// numeralSet extracts the distinct bare numerals in text.
func numeralSet(text string) map[string]struct{} {
	matches := numeralPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		set[m] = struct{}{}
	}
	return set
}

// tokenSet lowercases and splits text into its distinct words.
func tokenSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccard returns the word-overlap similarity of two token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for w := range small {
		if _, ok := large[w]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
