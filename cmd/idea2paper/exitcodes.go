// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"

	"github.com/pdiddy/idea2paper/pkg/types"
)

// Exit codes pinned by the pipeline's command-line contract: 0 on any run
// that produced a result (pass or fallback), 2 on a configuration problem,
// 3 on a fatal engine error, 130 on cancellation.
const (
	exitOK            = 0
	exitConfigError   = 2
	exitFatalEngine   = 3
	exitCancelled     = 130
)

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var cfgErr *types.ConfigError
	if errors.As(err, &cfgErr) {
		return exitConfigError
	}
	var cancelled *types.Cancelled
	if errors.As(err, &cancelled) || errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	return exitFatalEngine
}
