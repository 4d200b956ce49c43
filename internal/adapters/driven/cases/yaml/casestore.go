// Package yaml loads evaluation case sets from YAML files.
//
// A set named <name> is read from <casesDir>/<name>.yaml (or .yml). One
// set ships embedded in the binary so evaluation works on a fresh
// install; a file with the same name in the cases directory shadows it.
package yaml

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

// BuiltinSet is the name of the embedded case set.
const BuiltinSet = "builtin"

//go:embed builtin.yaml
var builtinYAML []byte

// Ensure CaseStore implements the interface.
var _ driven.CaseStore = (*CaseStore)(nil)

// CaseStore reads case sets from a directory of YAML files.
type CaseStore struct {
	casesDir string
}

// caseSetFile is the on-disk shape of a case set.
type caseSetFile struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Cases       []caseFile `yaml:"cases"`
}

type caseFile struct {
	ID              string   `yaml:"id"`
	Question        string   `yaml:"question"`
	ExpectedAnswer  string   `yaml:"expected_answer"`
	ExpectedSources []string `yaml:"expected_sources"`
	Keywords        []string `yaml:"keywords"`
	Category        string   `yaml:"category"`
	Difficulty      string   `yaml:"difficulty"`
}

// NewCaseStore creates a case store reading from casesDir. The directory
// does not have to exist; the embedded builtin set is always served.
func NewCaseStore(casesDir string) *CaseStore {
	return &CaseStore{casesDir: casesDir}
}

// LoadSet returns the cases in the named set. An empty name means the
// builtin set.
func (s *CaseStore) LoadSet(_ context.Context, name string) ([]domain.EvaluationCase, error) {
	if name == "" {
		name = BuiltinSet
	}

	data, err := s.readSetFile(name)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading case set %q: %w", name, err)
		}
		if name != BuiltinSet {
			return nil, domain.ErrNotFound
		}
		data = builtinYAML
	}

	return parseSet(name, data)
}

// ListSets returns the names of all available sets, sorted. The builtin
// set is always present, whether or not a file shadows it.
func (s *CaseStore) ListSets(_ context.Context) ([]string, error) {
	names := map[string]struct{}{BuiltinSet: {}}

	entries, err := os.ReadDir(s.casesDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading cases directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names[strings.TrimSuffix(e.Name(), ext)] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	return sorted, nil
}

// Dir returns the cases directory path.
func (s *CaseStore) Dir() string {
	return s.casesDir
}

// readSetFile loads <name>.yaml from the cases directory, falling back
// to the .yml extension.
func (s *CaseStore) readSetFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.casesDir, name+".yaml"))
	if os.IsNotExist(err) {
		return os.ReadFile(filepath.Join(s.casesDir, name+".yml"))
	}
	return data, err
}

// parseSet unmarshals and validates a case set document.
func parseSet(name string, data []byte) ([]domain.EvaluationCase, error) {
	var set caseSetFile
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing case set %q: %w", name, err)
	}

	cases := make([]domain.EvaluationCase, 0, len(set.Cases))
	for i, c := range set.Cases {
		if c.ID == "" {
			return nil, fmt.Errorf("case set %q: case %d has no id", name, i+1)
		}
		if strings.TrimSpace(c.Question) == "" {
			return nil, fmt.Errorf("case set %q: case %q has no question", name, c.ID)
		}

		category := domain.CaseCategory(c.Category)
		if c.Category == "" {
			category = domain.CaseCategoryPolicy
		}
		switch category {
		case domain.CaseCategoryThreshold, domain.CaseCategoryPolicy,
			domain.CaseCategoryDefinition, domain.CaseCategoryEdgeCase,
			domain.CaseCategoryMultiHop:
		default:
			return nil, fmt.Errorf("case set %q: case %q has unknown category %q", name, c.ID, c.Category)
		}

		difficulty := domain.CaseDifficulty(c.Difficulty)
		if c.Difficulty == "" {
			difficulty = domain.CaseDifficultyMedium
		}
		switch difficulty {
		case domain.CaseDifficultyEasy, domain.CaseDifficultyMedium, domain.CaseDifficultyHard:
		default:
			return nil, fmt.Errorf("case set %q: case %q has unknown difficulty %q", name, c.ID, c.Difficulty)
		}

		cases = append(cases, domain.EvaluationCase{
			ID:              c.ID,
			Question:        c.Question,
			ExpectedAnswer:  c.ExpectedAnswer,
			ExpectedSources: c.ExpectedSources,
			Keywords:        c.Keywords,
			Category:        category,
			Difficulty:      difficulty,
		})
	}
	return cases, nil
}
