package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evidentlabs/beacon/internal/config"
	"github.com/evidentlabs/beacon/internal/ingest"
	"github.com/evidentlabs/beacon/internal/store"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <raw-dir>",
	Short: "Parse, redact, and chunk raw exports into the corpus store",
	Long: `Ingest walks one project directory per subfolder of <raw-dir>, reads the
Colleagues.txt roster and the email export files, redacts PII, and packs
the messages into overlapping chunks in the corpus store.

Redaction happens before anything persists: emails, phones, URLs, and
roster names never reach the store or any prompt.

Example:
  beacon ingest data/raw
  beacon ingest /mnt/exports --config ./beacon.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	rawDir := args[0]

	if verbose {
		fmt.Fprintf(os.Stderr, "Ingesting: %s\n", rawDir)
		fmt.Fprintf(os.Stderr, "Store: %s\n", cfg.Paths.Store)
		fmt.Fprintf(os.Stderr, "Chunking: %d tokens, %d overlap\n\n", cfg.Chunking.ChunkSize, cfg.Chunking.Overlap)
	}

	ing := ingest.New(cfg.Chunking)
	chunks, res, err := ing.Run(rawDir)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	st, err := store.Open(cfg.Paths.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.UpsertChunks(context.Background(), chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ %d projects, %d threads, %d messages\n", res.Projects, res.Threads, res.Messages)
	fmt.Fprintf(os.Stderr, "✓ %d chunks written to %s\n", res.Chunks, cfg.Paths.Store)
	if res.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "✗ %d files skipped (see warnings above)\n", res.Skipped)
	}
	fmt.Fprintf(os.Stderr, "\nNext: beacon index\n")

	return nil
}
