// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

// Package git queries the state of the working tree through the git
// executable.
package git

import (
	"context"
	"strings"

	"go.opendefense.cloud/shipyard/pkg/proc"
)

// Git is the version-control collaborator.
type Git struct {
	runner proc.Runner
}

// New creates a Git using the given process runner.
func New(runner proc.Runner) *Git {
	return &Git{runner: runner}
}

// HasRepository reports whether the current directory is inside a git
// repository.
func (g *Git) HasRepository(ctx context.Context) bool {
	_, err := g.runner.Run(ctx, proc.Command{
		Name: "git",
		Args: []string{"status"},
	})
	return err == nil
}

// IsClean reports whether the working tree has no uncommitted changes.
func (g *Git) IsClean(ctx context.Context) (bool, error) {
	out, err := g.runner.Run(ctx, proc.Command{
		Name: "git",
		Args: []string{"status", "--short"},
	})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) == "", nil
}

// Head returns the current commit hash.
func (g *Git) Head(ctx context.Context) (string, error) {
	out, err := g.runner.Run(ctx, proc.Command{
		Name: "git",
		Args: []string{"rev-parse", "HEAD"},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
