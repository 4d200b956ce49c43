package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
	"github.com/ancora-labs/ancora/internal/logger"
)

// Built-in prompts, used when no prompt store is attached or a named
// prompt is missing. Operators can override them through the prompt
// store without rebuilding.
const (
	defaultSystemPrompt = `You are a precise and trustworthy Credit Policy Assistant. Your role is to answer questions about credit scoring, underwriting policies, and risk assessment guidelines.

CRITICAL RULES:
1. ONLY use information from the provided context documents
2. If the answer is not in the context, say "I don't have information about that in the policy documents"
3. Always cite specific policy documents when answering
4. When providing numerical thresholds (credit scores, percentages, amounts), quote them EXACTLY as in the source
5. If multiple sources have relevant information, mention all of them
6. Be concise but complete - include all relevant details
7. Never make assumptions or add information not in the context
8. If the context is ambiguous, acknowledge the ambiguity

ANSWER FORMAT:
- Start with a direct answer to the question
- Provide specific details and exact thresholds from the policies
- End with source citations in the format: (Source: [document name] - [section])
- If multiple conditions apply, list them clearly

Remember: Accuracy is paramount. An "I don't know" is better than an incorrect answer.`

	defaultUserPrompt = `Based on the following policy documents, please answer this question:

QUESTION: %s

POLICY CONTEXT:
%s

Please provide a precise answer based only on the information above.`

	defaultStrictRetryPrompt = `Some figures in your previous answer do not appear in the policy context. Rewrite the answer using only numbers, percentages, and amounts quoted exactly from the context above. If the context does not contain the figure the question needs, reply exactly: "I don't have information about that in the policy documents."`
)

// excerptLength bounds citation previews.
const excerptLength = 200

var (
	contextRefPattern = regexp.MustCompile(`\[Context (\d+)\]`)
	sourceNotePattern = regexp.MustCompile(`\(Source:\s*([^)]+)\)`)
)

// Ensure prompt overrides can be attached.
var _ driven.PromptStoreAware = (*Answerer)(nil)

// Answerer renders retrieved chunks into a grounded prompt, calls the
// completion service, and maps the response back to citations and a
// confidence estimate. It never invents an answer: empty retrieval
// short-circuits to the fixed refusal without calling the model.
type Answerer struct {
	completion  driven.CompletionService
	prompts     driven.PromptStore
	temperature float64
	maxTokens   int
}

// NewAnswerer creates an answerer with generation parameters taken
// from settings.
func NewAnswerer(completion driven.CompletionService, settings domain.Settings) *Answerer {
	return &Answerer{
		completion:  completion,
		temperature: settings.Completion.Temperature,
		maxTokens:   settings.Completion.MaxTokens,
	}
}

// SetPromptStore attaches operator prompt overrides.
func (a *Answerer) SetPromptStore(store driven.PromptStore) {
	a.prompts = store
}

// Generate answers the question from the retrieved items.
func (a *Answerer) Generate(ctx context.Context, question string, items []domain.RetrievedItem) (*domain.Answer, error) {
	if len(items) == 0 {
		logger.Debug("No context retrieved; refusing without calling the model")
		return refusalAnswer(0), nil
	}
	return a.complete(ctx, a.messages(question, items), items)
}

// GenerateStrict retries a previously ungrounded answer. The failed
// answer is replayed as an assistant turn followed by the strict
// grounding instruction, so the model sees exactly what it got wrong.
func (a *Answerer) GenerateStrict(ctx context.Context, question string, items []domain.RetrievedItem, previous string) (*domain.Answer, error) {
	if len(items) == 0 {
		return refusalAnswer(0), nil
	}
	messages := append(a.messages(question, items),
		driven.ChatMessage{Role: "assistant", Content: previous},
		driven.ChatMessage{Role: "user", Content: a.prompt(driven.PromptStrictRetry, defaultStrictRetryPrompt)},
	)
	return a.complete(ctx, messages, items)
}

func (a *Answerer) complete(ctx context.Context, messages []driven.ChatMessage, items []domain.RetrievedItem) (*domain.Answer, error) {
	completion, err := a.completion.Chat(ctx, messages, driven.ChatOptions{
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}

	text := strings.TrimSpace(completion.Text)
	if text == "" || isRefusal(text) {
		return refusalAnswer(completion.TokensUsed), nil
	}

	citations := extractCitations(text, items)
	logger.Debug("Generated answer with %d citations using %d tokens", len(citations), completion.TokensUsed)
	return &domain.Answer{
		Text:       text,
		Citations:  citations,
		Confidence: confidenceFrom(items, len(citations)),
		TokensUsed: completion.TokensUsed,
	}, nil
}

func (a *Answerer) messages(question string, items []domain.RetrievedItem) []driven.ChatMessage {
	system := a.prompt(driven.PromptAnswerSystem, defaultSystemPrompt)
	user := fmt.Sprintf(a.prompt(driven.PromptAnswerUser, defaultUserPrompt), question, buildContext(items))
	return []driven.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

// prompt loads a named prompt from the store, falling back to the
// built-in text when no store is attached or the prompt is blank.
func (a *Answerer) prompt(name, fallback string) string {
	if a.prompts == nil {
		return fallback
	}
	text, err := a.prompts.Load(name)
	if err != nil || strings.TrimSpace(text) == "" {
		return fallback
	}
	return text
}

// buildContext renders retrieved chunks as numbered context blocks the
// model can cite by index.
func buildContext(items []domain.RetrievedItem) string {
	parts := make([]string, len(items))
	for i, item := range items {
		source := item.Document
		if source == "" {
			source = "Unknown"
		}
		section := item.Chunk.Section
		if section == "" {
			section = "General"
		}
		parts[i] = fmt.Sprintf("[Context %d] Source: %s | Section: %s\n%s", i+1, source, section, item.Chunk.Text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// isRefusal detects the model declining per its instructions, in any
// phrasing containing the canonical refusal line.
func isRefusal(text string) bool {
	return strings.Contains(strings.ToLower(text), "i don't have information")
}

// refusalAnswer is the fixed no-fabrication response.
func refusalAnswer(tokens int) *domain.Answer {
	return &domain.Answer{
		Text:       domain.RefusalText,
		TokensUsed: tokens,
	}
}

// extractCitations maps the answer's context references and source
// notes back to the retrieved items, deduplicated in rank order.
func extractCitations(text string, items []domain.RetrievedItem) []domain.Citation {
	cited := make(map[int]bool)

	// Explicit context references: "[Context 2]".
	for _, m := range contextRefPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 1 && n <= len(items) {
			cited[n-1] = true
		}
	}

	// Source notes: "(Source: fha_guidelines.md - Eligibility)". A
	// matching section narrows the citation to the exact chunk; a bare
	// document name cites every retrieved chunk of that document.
	for _, m := range sourceNotePattern.FindAllStringSubmatch(text, -1) {
		note := strings.TrimSpace(m[1])
		docPart, sectionPart := note, ""
		if idx := strings.Index(note, " - "); idx >= 0 {
			docPart = strings.TrimSpace(note[:idx])
			sectionPart = strings.TrimSpace(note[idx+3:])
		}
		matched := false
		for i, item := range items {
			if !strings.EqualFold(item.Document, docPart) {
				continue
			}
			if sectionPart == "" || strings.EqualFold(item.Chunk.Section, sectionPart) {
				cited[i] = true
				matched = true
			}
		}
		if !matched && sectionPart != "" {
			for i, item := range items {
				if strings.EqualFold(item.Document, docPart) {
					cited[i] = true
				}
			}
		}
	}

	// Plain mentions of a document's filename count as citations too.
	lower := strings.ToLower(text)
	for i, item := range items {
		if item.Document != "" && strings.Contains(lower, strings.ToLower(item.Document)) {
			cited[i] = true
		}
	}

	citations := make([]domain.Citation, 0, len(cited))
	seen := make(map[string]bool)
	for i, item := range items {
		if !cited[i] || seen[item.Chunk.ID] {
			continue
		}
		seen[item.Chunk.ID] = true
		citations = append(citations, domain.Citation{
			Document: item.Document,
			ChunkID:  item.Chunk.ID,
			Section:  item.Chunk.Section,
			Excerpt:  excerpt(item.Chunk.Text),
			Score:    item.Score,
		})
	}
	return citations
}

// excerpt returns a citation preview of the chunk text.
func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return string(runes[:excerptLength]) + "..."
}

// confidenceFrom estimates answer confidence from retrieval quality.
// A strong top similarity dominates; weak retrieval falls back to the
// average. Thin citation coverage caps the estimate, and nothing ever
// reports above 95.
func confidenceFrom(items []domain.RetrievedItem, citations int) int {
	if len(items) == 0 {
		return 0
	}
	top, sum := 0.0, 0.0
	for _, item := range items {
		if item.Score > top {
			top = item.Score
		}
		sum += item.Score
	}
	avg := sum / float64(len(items))

	var score int
	switch {
	case top > 0.85:
		score = 90 + int((top-0.85)*100.0/3.0)
	case top > 0.75:
		score = 75 + int((top-0.75)*150)
	default:
		score = int(avg * 75)
	}
	if score > 95 {
		score = 95
	}
	if citations < 2 && score > 60 {
		score = 60
	}
	return score
}
