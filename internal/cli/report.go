package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evidentlabs/beacon/internal/config"
	"github.com/evidentlabs/beacon/internal/llm"
	"github.com/evidentlabs/beacon/internal/logger"
	"github.com/evidentlabs/beacon/internal/model"
	"github.com/evidentlabs/beacon/internal/pipeline"
	"github.com/evidentlabs/beacon/internal/report"
	"github.com/evidentlabs/beacon/internal/retrieve"
	"github.com/evidentlabs/beacon/internal/store"
	"github.com/evidentlabs/beacon/internal/worker"
)

var (
	reportContext string
	reportProject string
	reportTopN    int
	reportJSON    string
	reportMD      string
	reportSave    bool
	reportReplay  bool
	reportTimeout time.Duration
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run the analysis pipeline and render the risk report",
	Long: `Report runs the full pipeline over the ingested corpus: retrieve evidence
per project, extract candidate items, verify every citation against the
corpus, then score, rank, and render.

The Markdown report goes to stdout unless --md names a file; --json writes
the machine-readable form alongside. With --replay every inference call is
served from the recorded cache, so a re-run over an unchanged corpus
reproduces the report offline.

Example:
  beacon report
  beacon report --project-context "QBR preparation" --top-n 3
  beacon report --project Project_Alpha --md alpha.md --json alpha.json
  beacon report --replay --save`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportContext, "project-context", "QBR preparation report", "framing line included in analysis prompts")
	reportCmd.Flags().StringVar(&reportProject, "project", "", "restrict the run to one project partition")
	reportCmd.Flags().IntVar(&reportTopN, "top-n", 0, "cap the report at N items (0 = config default)")
	reportCmd.Flags().StringVar(&reportJSON, "json", "", "write the JSON report to this path")
	reportCmd.Flags().StringVar(&reportMD, "md", "", "write the Markdown report to this path instead of stdout")
	reportCmd.Flags().BoolVar(&reportSave, "save", false, "write both renderings into the configured report directory")
	reportCmd.Flags().BoolVar(&reportReplay, "replay", false, "serve all inference from the recorded cache; fail on any miss")
	reportCmd.Flags().DurationVar(&reportTimeout, "timeout", 10*time.Minute, "overall pipeline timeout")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if reportTopN > 0 {
		cfg.Report.TopN = reportTopN
	}

	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	st, err := store.OpenReadOnly(cfg.Paths.Store)
	if err != nil {
		return &model.FatalCollaboratorError{Collaborator: "store", Err: err}
	}
	defer st.Close()

	snapshot, err := st.Chunks(ctx)
	if err != nil {
		return &model.FatalCollaboratorError{Collaborator: "store", Err: err}
	}
	if reportProject != "" {
		snapshot = filterProject(snapshot, reportProject)
		if len(snapshot) == 0 {
			return fmt.Errorf("no chunks for project %q; check 'beacon ingest' output", reportProject)
		}
	}

	index, err := retrieve.LoadIndex(ctx, st)
	if err != nil {
		return &model.FatalCollaboratorError{Collaborator: "store", Err: err}
	}
	if index.Len() == 0 {
		logger.Warn("vector table is empty; run 'beacon index' for ranked retrieval")
	}

	provider, embedder, err := buildCollaborators(cfg)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Corpus: %d chunks from %s\n", len(snapshot), cfg.Paths.Store)
		fmt.Fprintf(os.Stderr, "Provider: %s/%s\n", cfg.Model.Provider, cfg.Model.Name)
		fmt.Fprintf(os.Stderr, "Context: %s\n\n", reportContext)
	}

	rep, err := pipeline.New(cfg, provider, embedder, index).Run(ctx, snapshot, reportContext)
	if err != nil {
		return fmt.Errorf("report failed: %w", err)
	}

	if err := renderReport(cfg, rep, snapshot); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "✓ %d items flagged (run %s)\n", len(rep.Items), rep.RunID)
	if rep.Stats.DegradedRetrieval {
		fmt.Fprintf(os.Stderr, "✗ retrieval was degraded; results are keyword-only\n")
	}
	return nil
}

// buildCollaborators assembles the inference provider stack and the
// embedder. The provider is throttled first and cached outermost, so cache
// hits never wait on the rate limiter. A missing embedder key is not fatal:
// retrieval degrades to the keyword prefilter.
func buildCollaborators(cfg config.Config) (llm.Provider, retrieve.Embedder, error) {
	limiter := worker.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	cacheStore := newCache(cfg)

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.Model))
	if err != nil {
		return nil, nil, fmt.Errorf("provider: %w", err)
	}
	provider = llm.NewThrottledProvider(provider, limiter)

	switch {
	case reportReplay:
		if cacheStore == nil {
			return nil, nil, fmt.Errorf("--replay needs cache.enabled: true")
		}
		provider = llm.NewReplayProvider(provider, cacheStore)
	case cacheStore != nil:
		provider = llm.NewCachingProvider(provider, cacheStore, time.Duration(cfg.Cache.TTLHours)*time.Hour)
	}

	embedder, err := newEmbedder(cfg, cacheStore, limiter)
	if err != nil {
		logger.Warn("embedder unavailable: %v; retrieval will degrade to the keyword prefilter", err)
		embedder = unavailableEmbedder{err: err}
	}
	return provider, embedder, nil
}

// renderReport writes the requested renderings. Markdown goes to stdout
// unless redirected to a file; --save drops both forms into the report
// directory named by run ID.
func renderReport(cfg config.Config, rep *model.Report, snapshot []model.Chunk) error {
	byID := make(map[string]model.Chunk, len(snapshot))
	for _, c := range snapshot {
		byID[c.ID] = c
	}

	md := report.Markdown(*rep, byID)

	var jsonData []byte
	if reportJSON != "" || reportSave {
		data, err := report.JSON(*rep)
		if err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		jsonData = data
	}

	if reportMD != "" {
		if err := os.WriteFile(reportMD, []byte(md), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", reportMD, err)
		}
		fmt.Fprintf(os.Stderr, "✓ Markdown: %s\n", reportMD)
	} else if !reportSave {
		fmt.Print(md)
	}

	if reportJSON != "" {
		if err := os.WriteFile(reportJSON, jsonData, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", reportJSON, err)
		}
		fmt.Fprintf(os.Stderr, "✓ JSON: %s\n", reportJSON)
	}

	if reportSave {
		if err := os.MkdirAll(cfg.Paths.ReportDir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
		base := filepath.Join(cfg.Paths.ReportDir, "beacon-"+rep.RunID)
		if err := os.WriteFile(base+".md", []byte(md), 0o644); err != nil {
			return fmt.Errorf("write %s.md: %w", base, err)
		}
		if err := os.WriteFile(base+".json", jsonData, 0o644); err != nil {
			return fmt.Errorf("write %s.json: %w", base, err)
		}
		fmt.Fprintf(os.Stderr, "✓ Saved: %s.{md,json}\n", base)
	}
	return nil
}

func filterProject(chunks []model.Chunk, project string) []model.Chunk {
	var out []model.Chunk
	for _, c := range chunks {
		if c.Project == project {
			out = append(out, c)
		}
	}
	return out
}
