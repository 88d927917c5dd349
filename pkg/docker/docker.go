// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

// Package docker builds, tags and moves images through the docker
// executable.
package docker

import (
	"context"

	"github.com/mandelsoft/goutils/errors"

	"go.opendefense.cloud/shipyard/pkg/image"
	"go.opendefense.cloud/shipyard/pkg/proc"
)

// Docker is the image-build and registry collaborator.
type Docker struct {
	runner proc.Runner
}

// New creates a Docker using the given process runner.
func New(runner proc.Runner) *Docker {
	return &Docker{runner: runner}
}

// Build builds the image from the given context directory and dockerfile
// under every tag in tags.
func (d *Docker) Build(ctx context.Context, dir, dockerfile string, tags []image.Reference, noCache bool) error {
	args := []string{"image", "build", dir}
	for _, tag := range tags {
		args = append(args, "-t", tag.String())
	}
	args = append(args, "-f", dockerfile)
	if noCache {
		args = append(args, "--no-cache")
	}

	if _, err := d.runner.Run(ctx, proc.Command{Name: "docker", Args: args}); err != nil {
		return errors.Wrapf(err, "failed to build image %s", tags[0])
	}
	return nil
}

// Push pushes the tag to its registry.
func (d *Docker) Push(ctx context.Context, tag image.Reference) error {
	if _, err := d.runner.Run(ctx, proc.Command{Name: "docker", Args: []string{"image", "push", tag.String()}}); err != nil {
		return errors.Wrapf(err, "failed to push image %s", tag)
	}
	return nil
}

// Pull pulls the tag from its registry.
func (d *Docker) Pull(ctx context.Context, tag image.Reference) error {
	if _, err := d.runner.Run(ctx, proc.Command{Name: "docker", Args: []string{"image", "pull", tag.String()}}); err != nil {
		return errors.Wrapf(err, "failed to pull image %s", tag)
	}
	return nil
}

// Tag tags an existing local image under a new tag, optionally pushing the
// new tag afterwards.
func (d *Docker) Tag(ctx context.Context, existing, tag image.Reference, push bool) error {
	if _, err := d.runner.Run(ctx, proc.Command{Name: "docker", Args: []string{"tag", existing.String(), tag.String()}}); err != nil {
		return errors.Wrapf(err, "failed to tag image %s as %s", existing, tag)
	}
	if push {
		return d.Push(ctx, tag)
	}
	return nil
}

// Run runs the image interactively with the given command arguments,
// attached to the caller's terminal.
func (d *Docker) Run(ctx context.Context, tag image.Reference, args []string) error {
	cmdArgs := append([]string{"run", tag.String()}, args...)
	if _, err := d.runner.Run(ctx, proc.Command{Name: "docker", Args: cmdArgs, Interactive: true}); err != nil {
		return errors.Wrapf(err, "failed to run image %s", tag)
	}
	return nil
}
