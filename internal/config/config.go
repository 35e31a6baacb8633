// Package config defines the beacon configuration surface. Configuration is
// loaded once at startup and passed around as an immutable value; components
// never consult viper or globals after construction.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the complete runtime configuration.
type Config struct {
	Paths       Paths       `mapstructure:"paths" yaml:"paths"`
	Model       Model       `mapstructure:"model" yaml:"model"`
	Embedding   Embedding   `mapstructure:"embedding" yaml:"embedding"`
	Retrieval   Retrieval   `mapstructure:"retrieval" yaml:"retrieval"`
	Scoring     Scoring     `mapstructure:"scoring" yaml:"scoring"`
	Analysis    Analysis    `mapstructure:"analysis" yaml:"analysis"`
	Chunking    Chunking    `mapstructure:"chunking" yaml:"chunking"`
	Report      Report      `mapstructure:"report" yaml:"report"`
	Concurrency Concurrency `mapstructure:"concurrency" yaml:"concurrency"`
	RateLimit   RateLimit   `mapstructure:"rate_limit" yaml:"rate_limit"`
	Cache       Cache       `mapstructure:"cache" yaml:"cache"`
}

// Paths locates the on-disk artifacts.
type Paths struct {
	RawDir    string `mapstructure:"raw_dir" yaml:"raw_dir"`
	Store     string `mapstructure:"store" yaml:"store"`
	ReportDir string `mapstructure:"report_dir" yaml:"report_dir"`
	CacheDir  string `mapstructure:"cache_dir" yaml:"cache_dir"`
}

// Model selects and tunes the inference provider.
type Model struct {
	Provider       string  `mapstructure:"provider" yaml:"provider"` // openai, anthropic, ollama
	Name           string  `mapstructure:"name" yaml:"name"`
	Temperature    float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	HTTPProxy      string  `mapstructure:"http_proxy" yaml:"http_proxy,omitempty"`
	HTTPSProxy     string  `mapstructure:"https_proxy" yaml:"https_proxy,omitempty"`
	NoProxy        string  `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"` // comma-separated bypass hosts
}

// Embedding configures the embedding model used for indexing and retrieval.
type Embedding struct {
	Model string `mapstructure:"model" yaml:"model"`
}

// Retrieval tunes the hybrid retriever.
type Retrieval struct {
	TopK              int      `mapstructure:"top_k" yaml:"top_k"`
	PrefilterKeywords []string `mapstructure:"prefilter_keywords" yaml:"prefilter_keywords"`
}

// Scoring holds the deterministic score weights.
type Scoring struct {
	RoleWeights  map[string]float64 `mapstructure:"role_weights" yaml:"role_weights"`
	AgeWeight    float64            `mapstructure:"age_weight" yaml:"age_weight"`
	TopicWeight  float64            `mapstructure:"topic_weight" yaml:"topic_weight"`
	RepeatWeight float64            `mapstructure:"repeat_weight" yaml:"repeat_weight"`
	RepeatCap    int                `mapstructure:"repeat_cap" yaml:"repeat_cap"`
}

// Analysis tunes candidate extraction and verification.
type Analysis struct {
	AgingThresholdDays int     `mapstructure:"aging_threshold_days" yaml:"aging_threshold_days"`
	MaxCandidates      int     `mapstructure:"max_candidates" yaml:"max_candidates"`
	MergeThreshold     float64 `mapstructure:"merge_threshold" yaml:"merge_threshold"`
}

// Chunking tunes ingestion chunk packing.
type Chunking struct {
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"` // approximate tokens per chunk
	Overlap   int `mapstructure:"overlap" yaml:"overlap"`       // trailing tokens carried forward
}

// Report tunes composition and rendering.
type Report struct {
	TopN int `mapstructure:"top_n" yaml:"top_n"`
}

// Concurrency bounds the fan-out widths.
type Concurrency struct {
	PartitionWorkers int `mapstructure:"partition_workers" yaml:"partition_workers"`
	EmbedWorkers     int `mapstructure:"embed_workers" yaml:"embed_workers"`
}

// RateLimit bounds outbound inference and embedding calls.
type RateLimit struct {
	RPS   float64 `mapstructure:"rps" yaml:"rps"`
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

// Cache controls the layered response/embedding cache.
type Cache struct {
	Enabled  bool `mapstructure:"enabled" yaml:"enabled"`
	TTLHours int  `mapstructure:"ttl_hours" yaml:"ttl_hours"`
}

// DefaultConfig returns the shipped defaults.
func DefaultConfig() Config {
	return Config{
		Paths: Paths{
			RawDir:    "data/raw",
			Store:     ".beacon/corpus.db",
			ReportDir: "reports",
			CacheDir:  ".beacon/cache",
		},
		Model: Model{
			Provider:       "openai",
			Name:           "gpt-4o-mini",
			Temperature:    0.1,
			MaxTokens:      2000,
			TimeoutSeconds: 60,
		},
		Embedding: Embedding{
			Model: "text-embedding-3-small",
		},
		Retrieval: Retrieval{
			TopK: 10,
			PrefilterKeywords: []string{
				"deadline", "blocker", "blocked", "waiting", "urgent",
				"asap", "overdue", "delay", "delayed", "risk", "critical",
				"escalate", "unresolved", "pending", "stuck", "missing",
				"broken", "failed", "incident",
			},
		},
		Scoring: Scoring{
			RoleWeights: map[string]float64{
				"director": 2.0,
				"pm":       1.5,
				"ba":       1.2,
				"dev":      1.0,
			},
			AgeWeight:    0.8,
			TopicWeight:  0.7,
			RepeatWeight: 0.5,
			RepeatCap:    3,
		},
		Analysis: Analysis{
			AgingThresholdDays: 10,
			MaxCandidates:      3,
			MergeThreshold:     0.5,
		},
		Chunking: Chunking{
			ChunkSize: 1000,
			Overlap:   100,
		},
		Report: Report{
			TopN: 5,
		},
		Concurrency: Concurrency{
			PartitionWorkers: 4,
			EmbedWorkers:     4,
		},
		RateLimit: RateLimit{
			RPS:   2,
			Burst: 4,
		},
		Cache: Cache{
			Enabled:  true,
			TTLHours: 336,
		},
	}
}

// Load unmarshals the given viper instance over the defaults and validates
// the result. Pass viper.GetViper() from the CLI.
func Load(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be >= 1, got %d", c.Retrieval.TopK)
	}
	if c.Report.TopN < 1 {
		return fmt.Errorf("report.top_n must be >= 1, got %d", c.Report.TopN)
	}
	if len(c.Scoring.RoleWeights) == 0 {
		return fmt.Errorf("scoring.role_weights must not be empty")
	}
	if c.Scoring.RepeatCap < 0 {
		return fmt.Errorf("scoring.repeat_cap must be >= 0, got %d", c.Scoring.RepeatCap)
	}
	if c.Analysis.MaxCandidates < 1 {
		return fmt.Errorf("analysis.max_candidates must be >= 1, got %d", c.Analysis.MaxCandidates)
	}
	if c.Analysis.MergeThreshold < 0 || c.Analysis.MergeThreshold > 1 {
		return fmt.Errorf("analysis.merge_threshold must be within [0,1], got %v", c.Analysis.MergeThreshold)
	}
	if c.Chunking.ChunkSize < 1 {
		return fmt.Errorf("chunking.chunk_size must be >= 1, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.overlap must be within [0, chunk_size), got %d", c.Chunking.Overlap)
	}
	if c.Concurrency.PartitionWorkers < 1 || c.Concurrency.EmbedWorkers < 1 {
		return fmt.Errorf("concurrency workers must be >= 1")
	}
	if c.Model.TimeoutSeconds < 1 {
		return fmt.Errorf("model.timeout_seconds must be >= 1, got %d", c.Model.TimeoutSeconds)
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit must set rps > 0 and burst >= 1")
	}
	switch c.Model.Provider {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("unknown model.provider %q", c.Model.Provider)
	}
	return nil
}
