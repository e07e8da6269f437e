// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// NoveltyAction selects what the Novelty Verifier does on collision.
type NoveltyAction string

const (
	NoveltyActionReportOnly NoveltyAction = "report_only"
	NoveltyActionPivot      NoveltyAction = "pivot"
	NoveltyActionFail       NoveltyAction = "fail"
)

// IndexDirMode selects how VectorIndex directories are located.
type IndexDirMode string

const (
	IndexDirManual      IndexDirMode = "manual"
	IndexDirAutoProfile IndexDirMode = "auto_profile"
)

// RecallConfig tunes the three-path recall engine and how its paths fuse.
type RecallConfig struct {
	Path1Weight       float64 `mapstructure:"path1_weight" yaml:"path1_weight"`
	Path2Weight       float64 `mapstructure:"path2_weight" yaml:"path2_weight"`
	Path3Weight       float64 `mapstructure:"path3_weight" yaml:"path3_weight"`
	FinalTopK         int     `mapstructure:"final_top_k" yaml:"final_top_k"`
	CoarseRecallSize  int     `mapstructure:"coarse_recall_size" yaml:"coarse_recall_size"`
	FineTopK          int     `mapstructure:"fine_top_k" yaml:"fine_top_k"`
	DomainTopM        int     `mapstructure:"domain_top_m" yaml:"domain_top_m"`
	DomainSubBoost    float64 `mapstructure:"domain_sub_boost" yaml:"domain_sub_boost"`
	NormalizePaths    bool    `mapstructure:"normalize_paths" yaml:"normalize_paths"`
}

// SelectorConfig tunes the Pattern Selector.
type SelectorConfig struct {
	TopN int `mapstructure:"pattern_select_topn" yaml:"pattern_select_topn"`
}

// SamplingConfig holds per-stage LLM temperature and JSON-repair discipline.
type SamplingConfig struct {
	StoryTemperature  float64 `mapstructure:"story_temperature" yaml:"story_temperature"`
	CriticTemperature float64 `mapstructure:"critic_temperature" yaml:"critic_temperature"`
	CoachTemperature  float64 `mapstructure:"coach_temperature" yaml:"coach_temperature"`
	CriticStrictJSON  bool    `mapstructure:"critic_strict_json" yaml:"critic_strict_json"`
	JSONRetries       int     `mapstructure:"json_retries" yaml:"json_retries"`
}

// AnchorConfig tunes anchor selection in the Anchored Critic.
type AnchorConfig struct {
	Quantiles    []float64 `mapstructure:"anchor_quantiles" yaml:"anchor_quantiles"`
	MaxInitial   int       `mapstructure:"anchor_max_initial" yaml:"anchor_max_initial"`
	MaxTotal     int       `mapstructure:"anchor_max_total" yaml:"anchor_max_total"`
	MaxExemplars int       `mapstructure:"anchor_max_exemplars" yaml:"anchor_max_exemplars"`
}

// DensifyConfig tunes the second-round anchor densification pass.
type DensifyConfig struct {
	Enable            bool    `mapstructure:"densify_enable" yaml:"densify_enable"`
	LossThreshold     float64 `mapstructure:"densify_loss_threshold" yaml:"densify_loss_threshold"`
	MinAvgConfidence  float64 `mapstructure:"densify_min_avg_conf" yaml:"densify_min_avg_conf"`
	BucketSize        int     `mapstructure:"bucket_size" yaml:"bucket_size"`
	BucketCount       int     `mapstructure:"bucket_count" yaml:"bucket_count"`
}

// ScoreInferenceConfig tunes the deterministic score-inference kernel.
type ScoreInferenceConfig struct {
	TauByRole  map[Role]float64 `mapstructure:"tau_by_role" yaml:"tau_by_role"`
	TauDefault float64          `mapstructure:"tau_default" yaml:"tau_default"`
	TauPath    string           `mapstructure:"tau_path" yaml:"tau_path"`
	GridStep   float64          `mapstructure:"grid_step" yaml:"grid_step"`
}

// RefinementConfig tunes the Refinement Engine.
type RefinementConfig struct {
	MaxRefineIterations   int     `mapstructure:"max_refine_iterations" yaml:"max_refine_iterations"`
	NoveltyModeMaxPatterns int    `mapstructure:"novelty_mode_max_patterns" yaml:"novelty_mode_max_patterns"`
	FusionQualityThreshold float64 `mapstructure:"fusion_quality_threshold" yaml:"fusion_quality_threshold"`
	DegradationThreshold  float64 `mapstructure:"degradation_threshold" yaml:"degradation_threshold"`
	NoveltyStagnationDelta float64 `mapstructure:"novelty_stagnation_delta" yaml:"novelty_stagnation_delta"`
}

// NoveltyConfig tunes the Novelty Checker / Verifier.
type NoveltyConfig struct {
	Enable            bool          `mapstructure:"novelty_enable" yaml:"novelty_enable"`
	Action            NoveltyAction `mapstructure:"novelty_action" yaml:"novelty_action"`
	MaxPivots         int           `mapstructure:"max_pivots" yaml:"max_pivots"`
	CollisionThreshold float64      `mapstructure:"collision_threshold" yaml:"collision_threshold"`
	TopK              int           `mapstructure:"novelty_top_k" yaml:"novelty_top_k"`
}

// IndexConfig locates and governs build permissions for on-disk vector indexes.
type IndexConfig struct {
	DirMode   IndexDirMode `mapstructure:"index_dir_mode" yaml:"index_dir_mode"`
	AllowBuild bool        `mapstructure:"index_allow_build" yaml:"index_allow_build"`
	BaseDir   string       `mapstructure:"index_base_dir" yaml:"index_base_dir"`
}

// GatewayConfig governs retry/backoff and batching for the LLM and embedding
// gateways. Grounded on the teacher's AIConfig / HTTPConfig split.
type GatewayConfig struct {
	Model             string  `mapstructure:"model" yaml:"model"`
	EmbeddingModel    string  `mapstructure:"embedding_model" yaml:"embedding_model"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	EmbedBatchSize    int     `mapstructure:"embed_batch_size" yaml:"embed_batch_size"`
	EmbedSleepSeconds float64 `mapstructure:"embed_sleep_sec" yaml:"embed_sleep_sec"`
	EmbedMaxRetries   int     `mapstructure:"embed_max_retries" yaml:"embed_max_retries"`
	MaxRetries        int     `mapstructure:"max_retries" yaml:"max_retries"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// PathsConfig locates the persisted-artifact directories the pipeline reads
// and writes across a run.
type PathsConfig struct {
	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir"`
	LogDir     string `mapstructure:"log_dir" yaml:"log_dir"`
	ResultsDir string `mapstructure:"results_dir" yaml:"results_dir"`
	SecretsDir string `mapstructure:"secrets_dir" yaml:"secrets_dir"`
}

// Config is the engine's fully-resolved, immutable configuration. It is
// built once at startup by internal/pipelinecfg.Resolve and never mutated
// afterward; every component reads from a copy or a read-only reference.
type Config struct {
	Recall         RecallConfig         `mapstructure:"recall" yaml:"recall"`
	Selector       SelectorConfig       `mapstructure:"selector" yaml:"selector"`
	Sampling       SamplingConfig       `mapstructure:"sampling" yaml:"sampling"`
	Anchor         AnchorConfig         `mapstructure:"anchor" yaml:"anchor"`
	Densify        DensifyConfig        `mapstructure:"densify" yaml:"densify"`
	ScoreInference ScoreInferenceConfig `mapstructure:"score_inference" yaml:"score_inference"`
	Refinement     RefinementConfig     `mapstructure:"refinement" yaml:"refinement"`
	Novelty        NoveltyConfig        `mapstructure:"novelty" yaml:"novelty"`
	Index          IndexConfig          `mapstructure:"index" yaml:"index"`
	Gateway        GatewayConfig        `mapstructure:"gateway" yaml:"gateway"`
	Paths          PathsConfig          `mapstructure:"paths" yaml:"paths"`
}
