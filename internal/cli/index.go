package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evidentlabs/beacon/internal/config"
	"github.com/evidentlabs/beacon/internal/retrieve"
	"github.com/evidentlabs/beacon/internal/store"
	"github.com/evidentlabs/beacon/internal/worker"
)

var indexTimeout time.Duration

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed corpus chunks into the vector table",
	Long: `Index embeds every chunk in the store whose text changed since the last
run and writes the vectors back for similarity retrieval. Unchanged chunks
are skipped by content hash, so re-running after an incremental ingest
only pays for the new text.

Requires an OpenAI API key (BEACON_OPENAI_API_KEY or OPENAI_API_KEY).

Example:
  beacon index
  beacon index --timeout 30m`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().DurationVar(&indexTimeout, "timeout", 15*time.Minute, "overall indexing timeout")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()

	st, err := store.Open(cfg.Paths.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	limiter := worker.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	embedder, err := newEmbedder(cfg, newCache(cfg), limiter)
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Store: %s\n", cfg.Paths.Store)
		fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.Embedding.Model)
		fmt.Fprintf(os.Stderr, "Workers: %d\n\n", cfg.Concurrency.EmbedWorkers)
	}

	ix := retrieve.NewIndexer(st, embedder, cfg.Concurrency.EmbedWorkers)
	stats, err := ix.Run(ctx)
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ %d chunks: %d embedded, %d already current\n", stats.Total, stats.Embedded, stats.Skipped)
	fmt.Fprintf(os.Stderr, "\nNext: beacon report\n")

	return nil
}
