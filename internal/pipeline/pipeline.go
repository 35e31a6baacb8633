// Package pipeline orchestrates the staged analysis run: partition the
// corpus snapshot by project, retrieve evidence and extract candidates per
// partition, verify the joined candidates against the snapshot, then score
// and compose the final report. A partition failure drops that partition
// with a warning; the run fails only when a whole stage produces nothing or
// the run is cancelled.
package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/evidentlabs/beacon/internal/analyze"
	"github.com/evidentlabs/beacon/internal/compose"
	"github.com/evidentlabs/beacon/internal/config"
	"github.com/evidentlabs/beacon/internal/llm"
	"github.com/evidentlabs/beacon/internal/logger"
	"github.com/evidentlabs/beacon/internal/model"
	"github.com/evidentlabs/beacon/internal/retrieve"
	"github.com/evidentlabs/beacon/internal/score"
	"github.com/evidentlabs/beacon/internal/verify"
)

// Pipeline wires the stage collaborators around one configuration.
type Pipeline struct {
	cfg      config.Config
	embedder retrieve.Embedder
	index    retrieve.SimilarityIndex
	scorer   *score.Engine
	analyzer *analyze.Analyzer
	verifier *verify.Verifier
}

// New builds a pipeline. The provider should already carry whatever
// caching, replay, and throttling decorators the run needs.
func New(cfg config.Config, provider llm.Provider, embedder retrieve.Embedder, index retrieve.SimilarityIndex) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		embedder: embedder,
		index:    index,
		scorer: score.NewEngine(score.Weights{
			Role:      cfg.Scoring.RoleWeights,
			Age:       cfg.Scoring.AgeWeight,
			Topic:     cfg.Scoring.TopicWeight,
			Repeat:    cfg.Scoring.RepeatWeight,
			RepeatCap: cfg.Scoring.RepeatCap,
		}),
		analyzer: analyze.New(provider, cfg.Analysis),
		verifier: verify.New(provider, cfg.Analysis),
	}
}

// partitionBatch is one project's slice of the snapshot moving through the
// fork/join stages.
type partitionBatch struct {
	project string
	chunks  []model.Chunk
}

// Run executes the full pipeline over a corpus snapshot taken before this
// call. The snapshot plus configuration fully determine the report: ages
// are measured against the newest chunk timestamp, and the run ID derives
// from the snapshot fingerprint, so a rerun with replayed inference
// reproduces the report.
func (p *Pipeline) Run(ctx context.Context, snapshot []model.Chunk, projectContext string) (*model.Report, error) {
	if len(snapshot) == 0 {
		return nil, fmt.Errorf("pipeline: empty corpus snapshot; run ingest and index first")
	}

	stats := model.NewRunStats()
	stats.ChunksTotal = len(snapshot)
	asOf := model.AsOf(snapshot)
	id := runID(snapshot, projectContext)
	machine := newFSM(&stats)

	parts := partition(snapshot)
	stats.Partitions = len(parts)
	logger.Info("pipeline: run %s over %d chunks in %d partitions (corpus as of %s)",
		id, len(snapshot), len(parts), asOf.UTC().Format("2006-01-02 15:04"))

	batches, err := p.retrieveAll(ctx, parts, projectContext, &stats)
	if err != nil {
		machine.fail()
		return nil, err
	}
	if err := machine.to(StateExtracting); err != nil {
		return nil, err
	}

	candidates, err := p.extractAll(ctx, batches, projectContext, &stats)
	if err != nil {
		machine.fail()
		return nil, err
	}
	if err := machine.to(StateVerifying); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		machine.fail()
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	vres, err := p.verifier.Verify(ctx, candidates, snapshot)
	stats.TokensUsed += vres.TokensUsed
	if err != nil {
		machine.fail()
		return nil, &model.FatalCollaboratorError{Collaborator: "verifier", Err: err}
	}
	for reason, n := range vres.Dropped {
		stats.CountDrop(reason, n)
	}
	stats.ItemsMerged = vres.Merged
	stats.ItemsVerified = len(vres.Items)
	if err := machine.to(StateComposing); err != nil {
		return nil, err
	}

	scored := p.applyScores(vres.Items, chunksByID(snapshot), asOf)
	items := compose.Compose(scored, p.cfg.Report.TopN)
	if err := machine.to(StateDone); err != nil {
		return nil, err
	}
	logger.Info("pipeline: %d items composed, %d candidates dropped along the way",
		len(items), droppedTotal(stats))

	return &model.Report{
		RunID:          id,
		GeneratedAt:    asOf,
		ProjectContext: projectContext,
		Items:          items,
		Stats:          stats,
	}, nil
}

// retrieveAll runs the retrieval stage across partitions. Partition
// failures are stage-local; the stage fails only when nothing survives or
// the context dies.
func (p *Pipeline) retrieveAll(ctx context.Context, parts []partitionBatch, projectContext string, stats *model.RunStats) ([]partitionBatch, error) {
	results := make([]retrieve.Result, len(parts))
	failures := make([]error, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency.PartitionWorkers)
	for i := range parts {
		i := i
		g.Go(func() error {
			r := retrieve.NewRetriever(parts[i].chunks, p.index, p.embedder, p.cfg.Retrieval)
			res, err := r.Retrieve(gctx, retrieve.Query{Context: projectContext})
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				failures[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	out := make([]partitionBatch, 0, len(parts))
	for i, part := range parts {
		if failures[i] != nil {
			stats.PartitionsFailed++
			logger.Warn("retrieve %s: %v; partition dropped", part.project, failures[i])
			continue
		}
		if results[i].Degraded {
			stats.DegradedRetrieval = true
			logger.Warn("retrieve %s: %v", part.project, results[i].Warning)
		}
		stats.ChunksRetrieved += len(results[i].Chunks)
		out = append(out, partitionBatch{project: part.project, chunks: results[i].Chunks})
	}
	if len(out) == 0 {
		return nil, &model.FatalCollaboratorError{Collaborator: "retriever", Err: fmt.Errorf("every partition failed")}
	}
	return out, nil
}

// extractAll runs candidate extraction across the retrieved batches and
// joins the surviving candidates in partition order.
func (p *Pipeline) extractAll(ctx context.Context, batches []partitionBatch, projectContext string, stats *model.RunStats) ([]model.FlagItem, error) {
	results := make([]analyze.Result, len(batches))
	failures := make([]error, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency.PartitionWorkers)
	for i := range batches {
		i := i
		g.Go(func() error {
			res, err := p.analyzer.Analyze(gctx, analyze.Batch{
				ProjectContext: batchContext(projectContext, batches[i].project),
				Chunks:         batches[i].chunks,
			})
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				failures[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	var candidates []model.FlagItem
	survived := 0
	for i, b := range batches {
		if failures[i] != nil {
			stats.PartitionsFailed++
			logger.Warn("extract %s: %v; partition dropped", b.project, failures[i])
			continue
		}
		survived++
		stats.TokensUsed += results[i].TokensUsed
		stats.CandidatesExtracted += len(results[i].Candidates)
		for reason, n := range results[i].Dropped {
			stats.CountDrop(reason, n)
		}
		candidates = append(candidates, results[i].Candidates...)
	}
	if survived == 0 {
		return nil, &model.FatalCollaboratorError{Collaborator: "analyzer", Err: fmt.Errorf("every partition failed")}
	}
	return candidates, nil
}

// partition groups the snapshot by project, sorted by project name so the
// fork/join output order is stable across runs.
func partition(snapshot []model.Chunk) []partitionBatch {
	groups := make(map[string][]model.Chunk)
	for _, c := range snapshot {
		groups[c.Project] = append(groups[c.Project], c)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]partitionBatch, 0, len(names))
	for _, name := range names {
		out = append(out, partitionBatch{project: name, chunks: groups[name]})
	}
	return out
}

func batchContext(global, project string) string {
	if global == "" {
		return fmt.Sprintf("project %s", project)
	}
	return fmt.Sprintf("%s (project %s)", global, project)
}

func chunksByID(snapshot []model.Chunk) map[string]model.Chunk {
	out := make(map[string]model.Chunk, len(snapshot))
	for _, c := range snapshot {
		out[c.ID] = c
	}
	return out
}

// runID derives a stable identifier from the snapshot fingerprint, so a
// rerun over the same corpus names the same report.
func runID(snapshot []model.Chunk, projectContext string) string {
	ids := make([]string, 0, len(snapshot))
	for _, c := range snapshot {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	h.Write([]byte(projectContext))
	return uuid.NewSHA1(uuid.NameSpaceOID, h.Sum(nil)).String()
}

func droppedTotal(s model.RunStats) int {
	total := 0
	for _, n := range s.CandidatesDropped {
		total += n
	}
	return total
}
