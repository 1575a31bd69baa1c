package model

import "time"

// LLMConfig configures one language-model provider binding.
type LLMConfig struct {
	Provider  string `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model     string `json:"model" yaml:"model" mapstructure:"model"`
	APIKey    string `json:"-" yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url" mapstructure:"base_url"`
	TimeoutS  int    `json:"timeout_s" yaml:"timeout_s" mapstructure:"timeout_s"`
	MaxTokens int    `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
}

// Timeout returns the per-call timeout as a duration.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutS <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutS) * time.Second
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model    string `json:"model" yaml:"model" mapstructure:"model"`
	APIKey   string `json:"-" yaml:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url" mapstructure:"base_url"`
	CacheTTL int    `json:"cache_ttl_s" yaml:"cache_ttl_s" mapstructure:"cache_ttl_s"`
}

// Config carries every option recognized by the core pipeline. It is
// embedded verbatim in the JobResult so runs are reproducible.
type Config struct {
	MaxUploadBytes    int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	MaxChunkChars     int   `json:"max_chunk_chars" yaml:"max_chunk_chars" mapstructure:"max_chunk_chars"`
	ChunkOverlapChars int   `json:"chunk_overlap_chars" yaml:"chunk_overlap_chars" mapstructure:"chunk_overlap_chars"`

	// ConflictThreshold is T_conflict: the minimum embedding similarity for
	// triage to auto-resolve a branch conflict.
	ConflictThreshold float64 `json:"conflict_threshold" yaml:"conflict_threshold" mapstructure:"conflict_threshold"`

	// AltLabelExpansionScale discounts expanded occurrences matched through
	// an alternative label rather than the preferred label.
	AltLabelExpansionScale float64 `json:"alt_label_expansion_scale" yaml:"alt_label_expansion_scale" mapstructure:"alt_label_expansion_scale"`

	// HyphenAsWordChar controls whether hyphens count as word characters in
	// boundary validation during matching.
	HyphenAsWordChar bool `json:"hyphen_as_word_char" yaml:"hyphen_as_word_char" mapstructure:"hyphen_as_word_char"`

	StageConcurrency  int `json:"stage_concurrency" yaml:"stage_concurrency" mapstructure:"stage_concurrency"`
	MaxConcurrentJobs int `json:"max_concurrent_jobs" yaml:"max_concurrent_jobs" mapstructure:"max_concurrent_jobs"`
	JobRetentionDays  int `json:"job_retention_days" yaml:"job_retention_days" mapstructure:"job_retention_days"`

	StageSoftTimeoutS int `json:"stage_soft_timeout_s" yaml:"stage_soft_timeout_s" mapstructure:"stage_soft_timeout_s"`
	StageHardTimeoutS int `json:"stage_hard_timeout_s" yaml:"stage_hard_timeout_s" mapstructure:"stage_hard_timeout_s"`
	JobHardTimeoutS   int `json:"job_hard_timeout_s" yaml:"job_hard_timeout_s" mapstructure:"job_hard_timeout_s"`

	JobsDir      string `json:"-" yaml:"jobs_dir" mapstructure:"jobs_dir"`
	OntologyPath string `json:"-" yaml:"ontology_path" mapstructure:"ontology_path"`
	ListenAddr   string `json:"-" yaml:"listen_addr" mapstructure:"listen_addr"`

	LLM       LLMConfig       `json:"llm" yaml:"llm" mapstructure:"llm"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" mapstructure:"embedding"`

	// TaskLLM maps a pipeline task name (concept, rerank, branch_judge,
	// document_type, metadata, individual, property, area_of_law) to a
	// provider/model selection key. Pass-through strings; the core only sees
	// the provider interface.
	TaskLLM map[string]string `json:"task_llm,omitempty" yaml:"task_llm" mapstructure:"task_llm"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes:         10 << 20,
		MaxChunkChars:          3000,
		ChunkOverlapChars:      200,
		ConflictThreshold:      0.80,
		AltLabelExpansionScale: 0.95,
		HyphenAsWordChar:       true,
		StageConcurrency:       8,
		MaxConcurrentJobs:      10,
		JobRetentionDays:       30,
		StageSoftTimeoutS:      600,
		StageHardTimeoutS:      1200,
		JobHardTimeoutS:        3600,
		JobsDir:                "jobs",
		ListenAddr:             ":8080",
		LLM: LLMConfig{
			TimeoutS:  60,
			MaxTokens: 4096,
		},
		Embedding: EmbeddingConfig{
			CacheTTL: 3600,
		},
	}
}

// StageSoftTimeout returns the soft per-stage budget.
func (c Config) StageSoftTimeout() time.Duration {
	return time.Duration(c.StageSoftTimeoutS) * time.Second
}

// StageHardTimeout returns the hard per-stage budget.
func (c Config) StageHardTimeout() time.Duration {
	return time.Duration(c.StageHardTimeoutS) * time.Second
}

// JobHardTimeout returns the hard per-job budget.
func (c Config) JobHardTimeout() time.Duration {
	return time.Duration(c.JobHardTimeoutS) * time.Second
}
