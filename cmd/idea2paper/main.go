// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the idea2paper CLI: it turns one
// research idea into a critiqued, refined Story by driving the recall,
// selection, generation, and critic engine end to end.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdiddy/idea2paper/internal/pipelinecfg"
	"github.com/pdiddy/idea2paper/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// resolvedViper is populated by initConfig and consumed by subcommands.
var resolvedViper = pipelinecfg.New()

// secretOrEnv returns the named secret if loaded, falling back to an
// environment variable of the same shape the teacher CLI used for
// AI credentials.
func secretOrEnv(secretKey, envKey string) string {
	if v, ok := loadedSecrets[secretKey]; ok && v != "" {
		return v
	}
	return os.Getenv(envKey)
}

var rootCmd = &cobra.Command{
	Use:   "idea2paper",
	Short: "Turn a research idea into a critiqued, refined paper story",
	Long: `idea2paper recalls prior-work patterns relevant to a research idea, selects
a candidate pattern, drafts a Story, and runs it through an anchored blind
critic until it passes or the refinement budget is exhausted.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		secretsDir := resolvedViper.GetString("paths.secrets_dir")
		if secretsDir == "" {
			secretsDir = ".secrets"
		}
		s, err := secrets.Load(secretsDir)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./idea2paper.yaml or ~/.config/idea2paper/idea2paper.yaml)")
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		resolvedViper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		resolvedViper.AddConfigPath(filepath.Join(home, ".config", "idea2paper"))
	}

	if err := resolvedViper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", resolvedViper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}
