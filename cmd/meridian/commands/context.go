// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the Meridian CLI command tree.
package commands

import (
	"log/slog"
	"os"

	"github.com/haowjy/meridian-channel/cmd/meridian/cli"
	"github.com/haowjy/meridian-channel/lib/ops"
)

// invocation holds everything one command execution needs. Ambient
// environment (MERIDIAN_SPACE, MERIDIAN_STATE_ROOT) is read exactly
// once, here at the process boundary; everything below works from
// explicit values.
type invocation struct {
	runtime *ops.Runtime
	space   ops.SpaceContext
	logger  *slog.Logger
}

func newInvocation(spaceFlag string, verbose bool) (*invocation, error) {
	logger := cli.NewCommandLogger(verbose)

	spaceRef := spaceFlag
	if spaceRef == "" {
		spaceRef = os.Getenv("MERIDIAN_SPACE")
	}
	runtime, err := ops.NewRuntime("", os.Getenv("MERIDIAN_STATE_ROOT"), logger)
	if err != nil {
		return nil, err
	}
	return &invocation{
		runtime: runtime,
		space:   ops.SpaceContext{SpaceRef: spaceRef},
		logger:  logger,
	}, nil
}
