// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipelinecfg resolves the engine's immutable types.Config from
// viper's process-env > config-file > defaults precedence, grounded on the
// teacher CLI's initConfig/viper.SetEnvPrefix pattern.
package pipelinecfg

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/idea2paper/pkg/types"
)

// EnvPrefix is the environment-variable namespace viper reads config
// overrides from (e.g. IDEA2PAPER_RECALL_FINAL_TOP_K for recall.final_top_k).
const EnvPrefix = "IDEA2PAPER"

// ConfigName and ConfigType name the on-disk config file viper searches
// for in the current directory and the user config directory.
const (
	ConfigName = "idea2paper"
	ConfigType = "yaml"
)

// setDefaults seeds v with every configuration default, so Resolve never
// depends on zero-value struct defaults scattered across components.
func setDefaults(v *viper.Viper) {
	v.SetDefault("recall.path1_weight", 0.4)
	v.SetDefault("recall.path2_weight", 0.2)
	v.SetDefault("recall.path3_weight", 0.4)
	v.SetDefault("recall.final_top_k", 10)
	v.SetDefault("recall.coarse_recall_size", 100)
	v.SetDefault("recall.fine_top_k", 10)
	v.SetDefault("recall.domain_top_m", 5)
	v.SetDefault("recall.domain_sub_boost", 0.2)
	v.SetDefault("recall.normalize_paths", true)

	v.SetDefault("selector.pattern_select_topn", 20)

	v.SetDefault("sampling.story_temperature", 0.7)
	v.SetDefault("sampling.critic_temperature", 0.0)
	v.SetDefault("sampling.coach_temperature", 0.3)
	v.SetDefault("sampling.critic_strict_json", true)
	v.SetDefault("sampling.json_retries", 2)

	v.SetDefault("anchor.anchor_quantiles", []float64{0.05, 0.15, 0.25, 0.50, 0.75, 0.85, 0.95})
	v.SetDefault("anchor.anchor_max_initial", 11)
	v.SetDefault("anchor.anchor_max_total", 15)
	v.SetDefault("anchor.anchor_max_exemplars", 2)

	v.SetDefault("densify.densify_enable", true)
	v.SetDefault("densify.densify_loss_threshold", 0.35)
	v.SetDefault("densify.densify_min_avg_conf", 1.5)
	v.SetDefault("densify.bucket_size", 2)
	v.SetDefault("densify.bucket_count", 2)

	v.SetDefault("score_inference.tau_default", 1.0)
	v.SetDefault("score_inference.tau_path", "output/judge_tau.json")
	v.SetDefault("score_inference.grid_step", 0.01)

	v.SetDefault("refinement.max_refine_iterations", 3)
	v.SetDefault("refinement.novelty_mode_max_patterns", 10)
	v.SetDefault("refinement.fusion_quality_threshold", 0.65)
	v.SetDefault("refinement.degradation_threshold", 0.1)
	v.SetDefault("refinement.novelty_stagnation_delta", 0.5)

	v.SetDefault("novelty.novelty_enable", true)
	v.SetDefault("novelty.novelty_action", string(types.NoveltyActionReportOnly))
	v.SetDefault("novelty.max_pivots", 1)
	v.SetDefault("novelty.collision_threshold", 0.75)
	v.SetDefault("novelty.novelty_top_k", 5)

	v.SetDefault("index.index_dir_mode", string(types.IndexDirAutoProfile))
	v.SetDefault("index.index_allow_build", true)
	v.SetDefault("index.index_base_dir", "output")

	v.SetDefault("gateway.model", "claude-sonnet-4-5")
	v.SetDefault("gateway.embedding_model", "voyage-3")
	v.SetDefault("gateway.max_tokens", 4096)
	v.SetDefault("gateway.embed_batch_size", 32)
	v.SetDefault("gateway.embed_sleep_sec", 0.0)
	v.SetDefault("gateway.embed_max_retries", 3)
	v.SetDefault("gateway.max_retries", 3)
	v.SetDefault("gateway.timeout_seconds", 60)

	v.SetDefault("paths.output_dir", "output")
	v.SetDefault("paths.log_dir", "log")
	v.SetDefault("paths.results_dir", "results")
	v.SetDefault("paths.secrets_dir", ".secrets")
}

// New builds a viper.Viper wired for this program's config precedence:
// process env (IDEA2PAPER_*) over an idea2paper.yaml config file over the
// defaults set above. Callers may call SetConfigFile before ReadInConfig
// to point at an explicit --config flag value.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(ConfigName)
	v.SetConfigType(ConfigType)
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Resolve is the pure precedence-resolution step that builds the immutable
// Config once at startup: it never mutates v and never touches the
// filesystem itself (callers call v.ReadInConfig beforehand if a config
// file exists).
func Resolve(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("resolving configuration: %w", err)
	}
	return cfg, nil
}
