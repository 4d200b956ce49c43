// Package cli provides the cobra command tree for the ancora binary.
// Services are wired once in Execute and exposed to commands as package
// variables; commands nil-check them so a partially configured install
// degrades to a clear error instead of a panic.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ancora-labs/ancora/internal/adapters/driven/ai"
	casesyaml "github.com/ancora-labs/ancora/internal/adapters/driven/cases/yaml"
	configfile "github.com/ancora-labs/ancora/internal/adapters/driven/config/file"
	loaderfile "github.com/ancora-labs/ancora/internal/adapters/driven/loader/file"
	"github.com/ancora-labs/ancora/internal/adapters/driven/storage/bolt"
	"github.com/ancora-labs/ancora/internal/adapters/driven/storage/memory"
	"github.com/ancora-labs/ancora/internal/adapters/driven/storage/pgvector"
	"github.com/ancora-labs/ancora/internal/adapters/driven/storage/sqlite"
	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
	"github.com/ancora-labs/ancora/internal/core/services"
	"github.com/ancora-labs/ancora/internal/logger"
	"github.com/ancora-labs/ancora/internal/segmenter"
)

// version is set at build time via -ldflags "-X ...cli.version=v0.2.0".
var version = "dev"

// Services wired by initServices. Commands check these for nil so an
// unconfigured provider fails with an actionable message at the command
// that needs it, not at startup.
var (
	settingsService   driving.SettingsService
	queryService      driving.QueryService
	ingestService     driving.IngestService
	documentService   driving.DocumentService
	evaluationService driving.EvaluationService
	experimentService driving.ExperimentService
)

// closers releases stores and providers after the command finishes.
var closers []func() error

// verboseFlag toggles debug logging on stderr.
var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:   "ancora",
	Short: "Retrieval-grounded policy question answering",
	Long: `Ancora answers natural-language questions about a corpus of policy
documents. Answers are generated only from retrieved passages, carry
citations, and are validated so that no unsupported figures slip
through; when the corpus has nothing to say, ancora refuses instead
of guessing.

Typical workflow:
  ancora ingest "./policies/**/*.md"
  ancora ask "What is the minimum credit score for FHA loans?"
  ancora evaluate`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging on stderr")
}

// Execute wires the services, runs the selected command, and releases
// resources. Interrupt signals cancel the command context so long
// operations (watch mode, evaluations, the MCP server) shut down cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initServices(); err != nil {
		return err
	}
	defer closeResources()

	return rootCmd.ExecuteContext(ctx)
}

// initServices builds the adapter stack and the engine services.
//
// Invalid configuration is fatal. Anything else that fails to come up
// (index storage, an unconfigured provider) is logged and leaves the
// dependent services nil, so commands that don't need them still work;
// 'ancora config' in particular must run on a fresh machine so the
// missing pieces can be configured.
func initServices() error {
	configStore, err := configfile.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("opening config store: %w", err)
	}
	settingsService = services.NewSettingsService(configStore, ai.NewConfigValidator())

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	docStore, index, expStore, err := openIndex(settings)
	if err != nil {
		logger.Warn("Index storage unavailable: %v", err)
		return nil
	}
	documentService = services.NewDocumentService(docStore, index)

	embedder, err := ai.CreateEmbeddingService(&settings.Embedding, ai.OptionsFromSettings(*settings))
	if err != nil {
		logger.Warn("Embedding service unavailable: %v", err)
		return nil
	}
	closers = append(closers, embedder.Close)

	gate := services.NewIngestGate()
	segmenters := driven.SegmenterFactory(func(chunkSize, chunkOverlap int) driven.Segmenter {
		return segmenter.New(segmenter.WithChunkSize(chunkSize), segmenter.WithOverlap(chunkOverlap))
	})
	ingestService = services.NewIngestService(
		loaderfile.NewLoader(), docStore, index, embedder, segmenters, gate, *settings)

	completion, err := ai.CreateCompletionService(&settings.Completion, ai.OptionsFromSettings(*settings))
	if err != nil {
		logger.Warn("Completion service unavailable: %v", err)
		return nil
	}
	closers = append(closers, completion.Close)

	answerer := services.NewAnswerer(completion, *settings)
	if prompts, err := configfile.NewPromptStore(""); err == nil {
		answerer.SetPromptStore(prompts)
	} else {
		logger.Warn("Prompt overrides unavailable, using built-in prompts: %v", err)
	}

	historyStore, evalStore := openHistory(settings)
	retriever := services.NewRetriever(index, embedder, *settings)
	queryService = services.NewQueryService(retriever, answerer, services.NewValidator(), historyStore, *settings)

	caseStore := casesyaml.NewCaseStore(settings.CasesDir)
	evaluationService = services.NewEvaluationService(caseStore, queryService, evalStore, *settings)

	scratch := driven.VectorIndexFactory(func() (driven.VectorIndex, error) {
		return memory.NewVectorIndex(), nil
	})
	experimentService = services.NewExperimentService(
		caseStore, docStore, index, embedder, answerer, expStore, segmenters, scratch, gate, *settings)

	return nil
}

// openIndex builds the document registry, vector index, and experiment
// store for the configured backend. With pgvector only the similarity
// search moves to Postgres; documents and experiments stay in the local
// SQLite registry so the corpus remains inspectable offline.
func openIndex(settings *domain.Settings) (driven.DocumentStore, driven.VectorIndex, driven.ExperimentStore, error) {
	switch settings.Backend {
	case domain.IndexBackendSQLite:
		store, err := sqlite.NewStore(settings.IndexPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening index %s: %w", settings.IndexPath, err)
		}
		closers = append(closers, store.Close)
		return store.DocumentStore(), store.VectorIndex(), store.ExperimentStore(), nil

	case domain.IndexBackendPgvector:
		store, err := sqlite.NewStore(settings.IndexPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening registry %s: %w", settings.IndexPath, err)
		}
		dimensions := domain.EmbeddingDimensions()[settings.Embedding.Model]
		pg, err := pgvector.NewVectorIndex(context.Background(), settings.PostgresDSN, dimensions)
		if err != nil {
			store.Close() //nolint:errcheck // already failing
			return nil, nil, nil, fmt.Errorf("connecting to pgvector: %w", err)
		}
		closers = append(closers, store.Close, pg.Close)
		return store.DocumentStore(), pg, store.ExperimentStore(), nil

	case domain.IndexBackendMemory:
		// Experiments are print-only on the throwaway backend.
		return memory.NewDocumentStore(), memory.NewVectorIndex(), nil, nil

	default:
		return nil, nil, nil, fmt.Errorf("%w: unknown index backend %q", domain.ErrInvalidConfig, settings.Backend)
	}
}

// openHistory opens the append-only query/evaluation history. History is
// optional: on failure both stores are nil and runs are print-only.
func openHistory(settings *domain.Settings) (driven.QueryHistoryStore, driven.EvaluationStore) {
	store, err := bolt.NewStore(settings.HistoryPath)
	if err != nil {
		logger.Warn("History unavailable, queries will not be recorded: %v", err)
		return nil, nil
	}
	closers = append(closers, store.Close)
	return store.QueryHistoryStore(), store.EvaluationStore()
}

// closeResources releases stores and providers in reverse wiring order.
func closeResources() {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("Close failed: %v", err)
		}
	}
	closers = nil
}
