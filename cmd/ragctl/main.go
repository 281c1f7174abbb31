// Package main provides the ragctl CLI for the worldview knowledge base.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/worldview-rag/internal/assistant"
	"github.com/bull/worldview-rag/internal/chunker"
	"github.com/bull/worldview-rag/internal/completion"
	"github.com/bull/worldview-rag/internal/embedding"
	"github.com/bull/worldview-rag/internal/ingest"
	"github.com/bull/worldview-rag/internal/rag"
	"github.com/bull/worldview-rag/internal/retrieval"
	"github.com/bull/worldview-rag/internal/vectorstore"
	"github.com/bull/worldview-rag/internal/worldview"
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Worldview knowledge base management tool",
	Long: `CLI for the worldview RAG backend: index philosophical texts into
Qdrant, query them semantically, and talk to per-worldview assistants.

Environment variables:
  QDRANT_HOST      Qdrant hostname (default: localhost)
  QDRANT_PORT      Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY   OpenAI API key for embeddings (required)
  DEEPSEEK_API_KEY DeepSeek API key for assistants (required for ask/chat)
  DEEPSEEK_API_URL DeepSeek endpoint override (optional)`,
}

var (
	flagCategory    string
	flagTopK        int
	flagWorkers     int
	flagNoKB        bool
	flagTemperature float64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <directory>",
	Short: "Index a knowledge-base directory tree",
	Long: `Walks the directory tree, treating each subdirectory as a worldview
category, and chunks, embeds, and upserts every text file found.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Semantic search over the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

var answerCmd = &cobra.Command{
	Use:   "answer <question>",
	Short: "Answer a question with retrieved context, without a persona",
	Long: `Retrieves matching chunks, folds them into the question, and asks the
completion model directly. Use 'ask' for a worldview assistant instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnswer,
}

var askCmd = &cobra.Command{
	Use:   "ask <worldview> <question>",
	Short: "Ask a single question of a worldview assistant",
	Args:  cobra.ExactArgs(2),
	RunE:  runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat <worldview>",
	Short: "Interactive conversation with a worldview assistant",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

var assistantsCmd = &cobra.Command{
	Use:   "assistants",
	Short: "List the registered worldview assistants",
	RunE:  runAssistants,
}

var statsCmd = &cobra.Command{
	Use:   "stats <category>",
	Short: "Show index statistics for a category",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var deleteDocumentCmd = &cobra.Command{
	Use:   "delete-document <document-id>",
	Short: "Delete every chunk of a document from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteDocument,
}

var purgeCategoryCmd = &cobra.Command{
	Use:   "purge-category <category>",
	Short: "Delete every chunk of a category from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurgeCategory,
}

func init() {
	ingestCmd.Flags().IntVar(&flagWorkers, "workers", 2, "concurrent category workers")
	queryCmd.Flags().StringVar(&flagCategory, "category", "", "restrict to one worldview category")
	queryCmd.Flags().IntVar(&flagTopK, "top-k", retrieval.DefaultTopK, "number of matches to return")
	answerCmd.Flags().StringVar(&flagCategory, "category", "", "restrict context to one worldview category")
	answerCmd.Flags().IntVar(&flagTopK, "top-k", retrieval.DefaultTopK, "number of context chunks")
	askCmd.Flags().BoolVar(&flagNoKB, "no-knowledge-base", false, "answer without retrieved context")
	askCmd.Flags().Float64Var(&flagTemperature, "temperature", 0, "override the assistant's temperature")
	deleteDocumentCmd.Flags().StringVar(&flagCategory, "category", "", "category the document belongs to")

	rootCmd.AddCommand(ingestCmd, queryCmd, answerCmd, askCmd, chatCmd,
		assistantsCmd, statsCmd, deleteDocumentCmd, purgeCategoryCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func connectStore() (*vectorstore.Store, error) {
	host := getEnv("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)

	store, err := vectorstore.New(host, port, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to Qdrant: %w", err)
	}
	return store, nil
}

func newBatcher() (*embedding.Batcher, error) {
	batcher, err := embedding.NewBatcher(0) // Use default batch size
	if err != nil {
		return nil, fmt.Errorf("Failed to create embedding client: %w", err)
	}
	return batcher, nil
}

func newRouter(store *vectorstore.Store) (*assistant.Router, error) {
	batcher, err := newBatcher()
	if err != nil {
		return nil, err
	}
	deepseek, err := completion.NewClient()
	if err != nil {
		return nil, fmt.Errorf("Failed to create DeepSeek client: %w", err)
	}
	svc := retrieval.NewService(batcher, store, slog.Default())
	return assistant.NewRouter(svc, deepseek, slog.Default()), nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	store, err := connectStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("Failed to ensure collection: %w", err)
	}

	batcher, err := newBatcher()
	if err != nil {
		return err
	}

	c, err := chunker.New(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	if err != nil {
		return err
	}

	fmt.Printf("Ingesting %s...\n", args[0])
	pipeline := ingest.NewPipeline(c, batcher, store, slog.Default(), flagWorkers)
	result, err := pipeline.IngestRoot(ctx, args[0])
	if err != nil {
		return fmt.Errorf("Ingestion failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Ingestion complete!")
	for _, s := range result.Categories {
		fmt.Printf("  %-20s %d/%d documents", s.Category, s.Successful, s.TotalDocuments)
		if s.Failed > 0 {
			fmt.Printf(" (%d failed)", s.Failed)
		}
		fmt.Println()
	}
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Second))
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := connectStore()
	if err != nil {
		return err
	}
	defer store.Close()

	batcher, err := newBatcher()
	if err != nil {
		return err
	}

	var filter *vectorstore.Filter
	if flagCategory != "" {
		w, err := worldview.Parse(flagCategory)
		if err != nil {
			return err
		}
		filter = &vectorstore.Filter{Category: string(w)}
	}

	svc := retrieval.NewService(batcher, store, slog.Default())
	results, err := svc.Search(ctx, args[0], flagTopK, filter, "")
	if err != nil {
		return fmt.Errorf("Search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s", i+1, r.Score, r.Metadata.Category)
		if r.Metadata.Title != "" {
			fmt.Printf(" — %s", r.Metadata.Title)
		}
		if r.Metadata.Author != "" {
			fmt.Printf(" (%s)", r.Metadata.Author)
		}
		fmt.Println()
		fmt.Printf("   %s\n\n", r.Text)
	}
	return nil
}

func runAnswer(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := connectStore()
	if err != nil {
		return err
	}
	defer store.Close()

	batcher, err := newBatcher()
	if err != nil {
		return err
	}
	deepseek, err := completion.NewClient()
	if err != nil {
		return fmt.Errorf("Failed to create DeepSeek client: %w", err)
	}

	var filter *vectorstore.Filter
	if flagCategory != "" {
		w, err := worldview.Parse(flagCategory)
		if err != nil {
			return err
		}
		filter = &vectorstore.Filter{Category: string(w)}
	}

	svc := retrieval.NewService(batcher, store, slog.Default())
	assembler := rag.NewAssembler(svc, deepseek, slog.Default())

	resp, sources, err := assembler.Generate(ctx, completion.Request{
		Messages: []completion.Message{
			{Role: completion.RoleUser, Content: args[0]},
		},
	}, rag.Options{TopK: flagTopK, Filter: filter})
	if err != nil {
		return err
	}

	fmt.Println(resp.Content)
	fmt.Println()
	fmt.Printf("[model=%s context=%d tokens=%d+%d]\n",
		resp.Model, len(sources), resp.PromptTokens, resp.CompletionTokens)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	store, err := connectStore()
	if err != nil {
		return err
	}
	defer store.Close()

	router, err := newRouter(store)
	if err != nil {
		return err
	}

	answer, err := router.Ask(context.Background(), args[0], args[1], nil,
		assistant.AskOptions{DisableKnowledgeBase: flagNoKB, Temperature: flagTemperature})
	if err != nil {
		return err
	}

	fmt.Println(answer.Content)
	fmt.Println()
	fmt.Printf("[model=%s sources=%d tokens=%d+%d cost=$%.6f]\n",
		answer.Model, len(answer.Sources),
		answer.PromptTokens, answer.CompletionTokens, answer.Cost)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	w, err := worldview.Parse(args[0])
	if err != nil {
		return err
	}

	store, err := connectStore()
	if err != nil {
		return err
	}
	defer store.Close()

	router, err := newRouter(store)
	if err != nil {
		return err
	}

	fmt.Printf("Chatting with the %s assistant. Type 'exit' to leave.\n", w)

	var history []completion.Message
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		answer, err := router.Ask(context.Background(), string(w), question, history)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		fmt.Println()
		fmt.Println(answer.Content)
		fmt.Println()

		history = append(history,
			completion.Message{Role: completion.RoleUser, Content: question},
			completion.Message{Role: completion.RoleAssistant, Content: answer.Content},
		)
	}
	return scanner.Err()
}

func runAssistants(cmd *cobra.Command, args []string) error {
	// Stable order comes from the worldview enum, not map iteration.
	defs := assistant.Definitions()
	for _, w := range worldview.All() {
		def := defs[w]
		fmt.Printf("%-20s model=%s temperature=%.1f max_tokens=%d\n",
			def.Name, def.Model, def.Temperature, def.MaxTokens)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	store, err := connectStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("Stats failed: %w", err)
	}

	fmt.Printf("Category:  %s\n", stats.Category)
	fmt.Printf("Documents: %d\n", stats.DocumentCount)
	fmt.Printf("Chunks:    %d\n", stats.ChunkCount)
	fmt.Printf("Authors:   %d\n", stats.AuthorCount)
	fmt.Printf("Titles:    %d\n", stats.TitleCount)
	return nil
}

func runDeleteDocument(cmd *cobra.Command, args []string) error {
	store, err := connectStore()
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.DeleteByDocument(context.Background(), args[0], flagCategory)
	if err != nil {
		return fmt.Errorf("Delete failed: %w", err)
	}
	fmt.Printf("Deleted %d chunks of document %s\n", deleted, args[0])
	return nil
}

func runPurgeCategory(cmd *cobra.Command, args []string) error {
	store, err := connectStore()
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.PurgeCategory(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("Purge failed: %w", err)
	}
	fmt.Printf("Deleted %d chunks from category %s\n", deleted, args[0])
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
