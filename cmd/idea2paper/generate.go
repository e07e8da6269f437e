// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/idea2paper/internal/coach"
	"github.com/pdiddy/idea2paper/internal/critic"
	"github.com/pdiddy/idea2paper/internal/embedclient"
	"github.com/pdiddy/idea2paper/internal/gateway"
	"github.com/pdiddy/idea2paper/internal/kgstore"
	"github.com/pdiddy/idea2paper/internal/llmclient"
	"github.com/pdiddy/idea2paper/internal/novelty"
	"github.com/pdiddy/idea2paper/internal/pipeline"
	"github.com/pdiddy/idea2paper/internal/pipelinecfg"
	"github.com/pdiddy/idea2paper/internal/recall"
	"github.com/pdiddy/idea2paper/internal/refine"
	"github.com/pdiddy/idea2paper/internal/resultbundle"
	"github.com/pdiddy/idea2paper/internal/runlog"
	"github.com/pdiddy/idea2paper/internal/selector"
	"github.com/pdiddy/idea2paper/internal/story"
	"github.com/pdiddy/idea2paper/internal/vectorindex"
	"github.com/pdiddy/idea2paper/pkg/types"
)

var ideaBriefFlag string

var generateCmd = &cobra.Command{
	Use:   "generate <idea text...>",
	Short: "Recall, select, draft, and critique a Story for a research idea",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&ideaBriefFlag, "idea-brief", "", "optional longer brief expanding on the idea text")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := pipelinecfg.Resolve(resolvedViper)
	if err != nil {
		return &types.ConfigError{Reason: "resolving configuration", Err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userIdea := strings.Join(args, " ")
	runID := newRunID()

	logger, err := runlog.Open(cfg.Paths.LogDir, runID, userIdea, time.Now())
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	defer logger.Close()
	_ = logger.Event(runlog.Event{Timestamp: time.Now().UTC().Format(time.RFC3339), Stage: "pipeline", Message: "run started"})

	manager, err := buildManager(cfg, logger)
	if err != nil {
		return err
	}

	result, err := manager.Run(ctx, userIdea, ideaBriefFlag)
	if err != nil {
		_ = logger.Event(runlog.Event{Timestamp: time.Now().UTC().Format(time.RFC3339), Stage: "pipeline", Message: "run failed: " + err.Error()})
		return err
	}
	_ = logger.Event(runlog.Event{Timestamp: time.Now().UTC().Format(time.RFC3339), Stage: "pipeline", Message: fmt.Sprintf("run finished: success=%v reason=%s", result.Success, result.Reason)})

	if err := resultbundle.Write(cfg.Paths.ResultsDir, runID, result, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("writing result bundle: %w", err)
	}

	if result.Success {
		fmt.Fprintf(cmd.OutOrStdout(), "run %s succeeded after %d iteration(s): %q\n", runID, result.Iterations, result.FinalStory.Title)
	} else if result.FinalStory != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "run %s did not pass (%s), falling back to best story from iteration %d: %q\n",
			runID, result.Reason, result.FinalStorySource.Iteration, result.FinalStory.Title)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "run %s produced no story: %s\n", runID, result.Reason)
	}

	return nil
}

// buildManager wires every pipeline.Manager collaborator from resolved
// configuration and loaded secrets, grounded on the teacher's practice of
// constructing its AI clients once at command entry and passing them down.
// Every LLM and embedding call is routed through a runlog decorator tagged
// with the issuing component, so llm_calls.jsonl/embedding_calls.jsonl carry
// a record of each real gateway call in the run.
func buildManager(cfg types.Config, logger *runlog.Logger) (*pipeline.Manager, error) {
	store, err := kgstore.Load(cfg.Paths.OutputDir, cfg.Paths.OutputDir+"/.kg_snapshot")
	if err != nil {
		return nil, &types.ConfigError{Reason: "loading knowledge graph", Err: err}
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second}

	anthropicKey := secretOrEnv("anthropic-api-key", "ANTHROPIC_API_KEY")
	if anthropicKey == "" {
		return nil, &types.ConfigError{Reason: "missing anthropic-api-key secret or ANTHROPIC_API_KEY env var"}
	}
	llm := &llmclient.ClaudeGateway{APIKey: anthropicKey, Client: httpClient, MaxRetries: cfg.Gateway.MaxRetries}

	embeddingKey := secretOrEnv("embedding-api-key", "EMBEDDING_API_KEY")
	if embeddingKey == "" {
		embeddingKey = anthropicKey
	}
	embed := &embedclient.HTTPGateway{APIKey: embeddingKey, Client: httpClient, MaxRetries: cfg.Gateway.EmbedMaxRetries}

	loggedLLM := func(stage string) gateway.LLMGateway {
		return &runlog.LLMGateway{Inner: llm, Logger: logger, Stage: stage}
	}
	loggedEmbed := func(stage string) gateway.EmbeddingGateway {
		return &runlog.EmbeddingGateway{Inner: embed, Logger: logger, Stage: stage}
	}

	tau, err := critic.LoadTauTable(cfg.ScoreInference.TauPath, cfg.Gateway.Model, "")
	if err != nil {
		return nil, err
	}

	noveltyIndex, noveltyCorpus := openNoveltyIndex(cfg)

	return &pipeline.Manager{
		Store: store,
		Recall: &recall.Engine{Store: store, Embed: loggedEmbed("recall"), Config: cfg.Recall, Model: cfg.Gateway.EmbeddingModel, EmbedBatchSize: cfg.Gateway.EmbedBatchSize, EmbedSleepSeconds: cfg.Gateway.EmbedSleepSeconds},
		Selector: &selector.Selector{LLM: loggedLLM("selector"), Config: cfg.Selector, Model: cfg.Gateway.Model},
		Story: &story.Generator{LLM: loggedLLM("story"), Config: cfg.Sampling, Model: cfg.Gateway.Model},
		Critic: &critic.Critic{LLM: loggedLLM("critic"), Config: cfg.Sampling, Densify: cfg.Densify, ScoreInference: cfg.ScoreInference, AnchorMaxTotal: cfg.Anchor.MaxTotal, Model: cfg.Gateway.Model},
		Coach: &coach.Coach{LLM: loggedLLM("coach"), Config: cfg.Sampling, Model: cfg.Gateway.Model},
		Novelty: &novelty.Verifier{Index: noveltyIndex, Embed: loggedEmbed("novelty"), Model: cfg.Gateway.EmbeddingModel, Config: cfg.Novelty, Corpus: noveltyCorpus},
		Fusion: &refine.FusionEngine{LLM: loggedLLM("fusion"), Model: cfg.Gateway.Model},
		Tau: tau,
		Config: cfg,
	}, nil
}

// openNoveltyIndex opens the on-disk novelty corpus index under
// index_base_dir, creating an empty one if none exists yet. An index that
// cannot be opened is not fatal: the Novelty Verifier no-ops when its Index
// is nil, matching report_only behavior on an unbuilt corpus.
func openNoveltyIndex(cfg types.Config) (*vectorindex.Index, map[string]novelty.CorpusEntry) {
	if !cfg.Novelty.Enable {
		return nil, nil
	}
	dir := cfg.Index.BaseDir + "/novelty_index"
	idx, err := vectorindex.Open(dir)
	if err != nil {
		return nil, nil
	}
	return idx, nil
}

func newRunID() string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return time.Now().UTC().Format("20060102T150405Z") + "-" + hex.EncodeToString(buf)
}
