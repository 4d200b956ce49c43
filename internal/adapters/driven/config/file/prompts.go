package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads answer-generation prompts from user-editable files
// on disk, so operators can tune grounding behaviour without rebuilding.
//
// The store uses lazy initialisation - files are only created when first
// accessed, not in the constructor. This makes testing easier and avoids
// unexpected I/O.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts contains embedded default prompts.
// These are used when user files don't exist and as the initial content
// for new files. The texts match the built-in fallbacks in the answer
// generator; editing the files is what makes them diverge.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptAnswerSystem: `You are a precise and trustworthy Credit Policy Assistant. Your role is to answer questions about credit scoring, underwriting policies, and risk assessment guidelines.

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

Remember: Accuracy is paramount. An "I don't know" is better than an incorrect answer.`,

	driven.PromptAnswerUser: `Based on the following policy documents, please answer this question:

QUESTION: %s

POLICY CONTEXT:
%s

Please provide a precise answer based only on the information above.`,

	driven.PromptStrictRetry: `Some figures in your previous answer do not appear in the policy context. Rewrite the answer using only numbers, percentages, and amounts quoted exactly from the context above. If the context does not contain the figure the question needs, reply exactly: "I don't have information about that in the policy documents."`,
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.ancora/prompts/.
//
// The constructor does not perform any I/O - directory creation and
// file writes happen lazily on first Load() call.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".ancora", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt template for the given name.
// On first call, initialises the prompt directory and creates default files.
// Returns cached value if available, otherwise loads from file.
// Falls back to embedded default if file doesn't exist.
func (s *PromptStore) Load(name string) (string, error) {
	// Ensure directory and defaults exist (lazy init)
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		// Fall back to embedded defaults if init failed
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	// Check cache first (read lock)
	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	// Load from file (no lock held during I/O)
	prompt, err := s.loadFromFile(name)
	if err != nil {
		// Fall back to embedded default
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	// Cache the result (write lock)
	// Use double-check pattern to avoid overwriting concurrent loads
	s.mu.Lock()
	if _, ok := s.cache[name]; !ok {
		s.cache[name] = prompt
	} else {
		// Another goroutine loaded it first, use their value
		prompt = s.cache[name]
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
// Called once via sync.Once on first Load().
func (s *PromptStore) initialise() {
	// Create directory
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	// Create default prompt files (only if they don't exist)
	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	// Create README
	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

// loadFromFile reads a prompt from disk.
func (s *PromptStore) loadFromFile(name string) (string, error) {
	path := filepath.Join(s.promptDir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil // Already exists or stat error (ignore)
	}

	content := `# Ancora Prompts

This directory contains the customisable prompts behind answer generation.

## Files

- ` + "`answer_system.txt`" + ` - Grounding rules for the policy assistant
- ` + "`answer_user.txt`" + ` - Wraps the question and retrieved policy context
- ` + "`strict_retry.txt`" + ` - Tightened instructions after a failed grounding check

## Customisation

Edit any file to adjust behaviour. Changes take effect on the next command.

## Format Placeholders

answer_user.txt uses Go fmt placeholders:
- first ` + "`%s`" + ` - the question
- second ` + "`%s`" + ` - the retrieved context

Keep both placeholders, in that order. The other prompts take none.
`
	return os.WriteFile(path, []byte(content), 0600)
}
