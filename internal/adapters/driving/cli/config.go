package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage engine configuration",
	Long: `View and change retrieval, provider, and storage configuration.

Values live in a TOML file; environment variables such as
ANCORA_OPENAI_API_KEY and ANCORA_POSTGRES_DSN override the file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Sets a single configuration value by dotted key. The change is
validated before it is written; a bad value never lands on disk.

Examples:
  ancora config set top_k 8
  ancora config set chunk_size 1500
  ancora config set embedding.model mxbai-embed-large
  ancora config set index.backend pgvector`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [provider]",
	Short: "Set an API key",
	Long:  `Prompts for an API key without echoing it and stores it for every service configured to use the given provider.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigSetKey,
}

var configEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure the embedding provider",
	Long:  `Interactively select the embedding provider and model used to build and query the index.`,
	RunE:  runConfigEmbedding,
}

var configCompletionCmd = &cobra.Command{
	Use:   "completion",
	Short: "Configure the completion provider",
	Long:  `Interactively select the completion provider and model used to generate answers.`,
	RunE:  runConfigCompletion,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long:  `Checks the configuration against the domain rules and pings both providers.`,
	RunE:  runConfigValidate,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetKeyCmd)
	configCmd.AddCommand(configEmbeddingCmd)
	configCmd.AddCommand(configCompletionCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Configuration")
	cmd.Println("=====================")
	cmd.Println()

	cmd.Println("[Retrieval]")
	cmd.Printf("  Top K: %d\n", settings.TopK)
	cmd.Printf("  Similarity threshold: %.2f\n", settings.SimilarityThreshold)
	reranking := "disabled"
	if settings.RerankingEnabled {
		reranking = "enabled"
	}
	cmd.Printf("  Reranking: %s\n", reranking)
	cmd.Println()

	cmd.Println("[Segmenter]")
	cmd.Printf("  Chunk size: %d\n", settings.ChunkSize)
	cmd.Printf("  Chunk overlap: %d\n", settings.ChunkOverlap)
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	if settings.Embedding.Provider.IsLocal() || settings.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	printAPIKeyLine(cmd, settings.Embedding.Provider, settings.Embedding.APIKey)
	cmd.Println()

	cmd.Println("[Completion]")
	cmd.Printf("  Provider: %s\n", settings.Completion.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Completion.Model)
	if settings.Completion.Provider.IsLocal() || settings.Completion.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Completion.BaseURL)
	}
	printAPIKeyLine(cmd, settings.Completion.Provider, settings.Completion.APIKey)
	cmd.Printf("  Temperature: %.2f\n", settings.Completion.Temperature)
	cmd.Printf("  Max tokens: %d\n", settings.Completion.MaxTokens)
	cmd.Println()

	cmd.Println("[Index]")
	cmd.Printf("  Backend: %s\n", settings.Backend)
	switch settings.Backend {
	case domain.IndexBackendSQLite:
		cmd.Printf("  Path: %s\n", settings.IndexPath)
	case domain.IndexBackendPgvector:
		cmd.Printf("  Postgres DSN: %s\n", maskDSN(settings.PostgresDSN))
	case domain.IndexBackendMemory:
		cmd.Println("  Path: (in memory, not persisted)")
	}
	cmd.Println()

	cmd.Println("[History]")
	cmd.Printf("  Path: %s\n", settings.HistoryPath)
	cmd.Println()

	cmd.Println("[Evaluation]")
	cmd.Printf("  Cases dir: %s\n", settings.CasesDir)
	cmd.Println()

	cmd.Printf("Config file: %s\n", settingsService.Path())

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'ancora config set' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key, value := args[0], args[1]
	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	if strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, "dsn") {
		value = maskAPIKey(value)
	}
	cmd.Printf("Set %s = %s\n", key, value)
	return nil
}

func runConfigSetKey(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	provider := domain.AIProvider(args[0])
	if !provider.IsValid() {
		return fmt.Errorf("unknown provider %q (expected ollama, openai, or anthropic)", args[0])
	}
	if !provider.RequiresAPIKey() {
		return fmt.Errorf("provider %s does not use an API key", provider)
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Print("Enter API key: ")
	apiKey := readPassword()
	cmd.Println()
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	applied := false
	if settings.Embedding.Provider == provider {
		if err := settingsService.Set("embedding.api_key", apiKey); err != nil {
			return fmt.Errorf("failed to store API key: %w", err)
		}
		cmd.Printf("API key set for embedding (%s)\n", provider)
		applied = true
	}
	if settings.Completion.Provider == provider {
		if err := settingsService.Set("completion.api_key", apiKey); err != nil {
			return fmt.Errorf("failed to store API key: %w", err)
		}
		cmd.Printf("API key set for completion (%s)\n", provider)
		applied = true
	}
	if !applied {
		return fmt.Errorf("no configured service uses %s; run 'ancora config embedding' or 'ancora config completion' to select it first", provider)
	}

	return nil
}

func runConfigEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	return configureEmbeddingProvider(cmd, reader)
}

func runConfigCompletion(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	return configureCompletionProvider(cmd, reader)
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	if err := settingsService.Validate(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	cmd.Println("Configuration is valid.")

	failed := false
	cmd.Print("Checking embedding provider... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		failed = true
	} else {
		cmd.Println("OK")
	}

	cmd.Print("Checking completion provider... ")
	if err := settingsService.ValidateCompletionConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		failed = true
	} else {
		cmd.Println("OK")
	}

	if failed {
		return errors.New("provider validation failed")
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	cmd.Println(settingsService.Path())
	return nil
}

//nolint:dupl // Similar to configureCompletionProvider but for embeddings - intentional for CLI flow clarity
func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select Embedding Provider")
	providers := domain.AllEmbeddingProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	input := readLine(reader)
	idx := parseChoice(input, len(providers), 1)
	selectedProvider := providers[idx-1]

	// Get model
	defaults := domain.DefaultEmbeddingModels()
	defaultModel := defaults[selectedProvider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	// Get API key if needed
	var apiKey string
	if selectedProvider.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		apiKey = readPassword()
		cmd.Println()
	}

	if err := settingsService.SetEmbeddingProvider(selectedProvider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	// Validate the configuration by pinging the service
	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Embedding provider configured: %s (%s)\n", selectedProvider.Description(), model)
	cmd.Println("Changing the embedding model invalidates the index; re-ingest with 'ancora ingest --force'.")
	return nil
}

//nolint:dupl // Similar to configureEmbeddingProvider but for completions - intentional for CLI flow clarity
func configureCompletionProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select Completion Provider")
	providers := domain.AllCompletionProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	input := readLine(reader)
	idx := parseChoice(input, len(providers), 1)
	selectedProvider := providers[idx-1]

	// Get model
	defaults := domain.DefaultCompletionModels()
	defaultModel := defaults[selectedProvider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	// Get API key if needed
	var apiKey string
	if selectedProvider.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		apiKey = readPassword()
		cmd.Println()
	}

	if err := settingsService.SetCompletionProvider(selectedProvider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure completion provider: %w", err)
	}

	// Validate the configuration by pinging the service
	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateCompletionConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("completion configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Completion provider configured: %s (%s)\n", selectedProvider.Description(), model)
	return nil
}

// Helper functions.

func printAPIKeyLine(cmd *cobra.Command, provider domain.AIProvider, apiKey string) {
	if !provider.RequiresAPIKey() {
		return
	}
	if apiKey != "" {
		cmd.Printf("  API Key: %s\n", maskAPIKey(apiKey))
	} else {
		cmd.Printf("  API Key: (not set)\n")
	}
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword() string {
	// Try to read password without echo
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password component of a connection string.
func maskDSN(dsn string) string {
	if dsn == "" {
		return "(not set)"
	}
	if at := strings.LastIndex(dsn, "@"); at > 0 {
		if colon := strings.Index(dsn, "://"); colon > 0 {
			return dsn[:colon+3] + "****" + dsn[at:]
		}
	}
	return dsn
}
