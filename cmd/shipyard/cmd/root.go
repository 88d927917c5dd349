// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

// Package cmd wires the shipyard command surface. Every subcommand builds a
// deploy.Session from the shared flags and delegates to it.
package cmd

import (
	"fmt"
	"os"

	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/spf13/cobra"

	"go.opendefense.cloud/shipyard/pkg/deploy"
	"go.opendefense.cloud/shipyard/pkg/logging"
	"go.opendefense.cloud/shipyard/pkg/manifest"
	"go.opendefense.cloud/shipyard/pkg/proc"
)

type rootOptions struct {
	services     []string
	force        bool
	verbose      bool
	version      string
	manifestPath string
}

// Execute runs the root command. Any error terminates the process with a
// single-line diagnostic; stack traces are never shown.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "shipyard: %s\n", err)
		os.Exit(1)
	}
}

// NewRootCommand builds the shipyard command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "shipyard",
		Short:         "build, push and deploy containerized services from a declarative manifest",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if opts.verbose {
				level = "debug"
			}
			logger, err := logging.NewLogger(logging.Config{Level: level, Encoding: "console", Development: opts.verbose})
			if err != nil {
				return err
			}
			cmd.SetContext(logging.ContextWithLogger(cmd.Context(), logger))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringArrayVarP(&opts.services, "service", "s", nil, "services to perform the action on (default: all)")
	pf.BoolVarP(&opts.force, "force", "f", false, "skip version-control checks, force the action (not recommended)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "print spawned commands and their outputs")
	pf.StringVar(&opts.version, "version", deploy.VersionCommit, "version tag source ('commit', 'date' or a literal tag)")
	pf.StringVar(&opts.manifestPath, "manifest", manifest.DefaultPath, "path to the deployment manifest")

	root.AddCommand(
		newBuildCommand(opts),
		newPushCommand(opts),
		newPullCommand(opts),
		newStagingCommand(opts),
		newProductionCommand(opts),
		newImageCommand(opts),
		newRunCommand(opts),
		newListCommand(opts),
	)
	return root
}

// session builds a deploy.Session for the invocation, merging the shared
// flags into the command-specific options.
func (o *rootOptions) session(cmd *cobra.Command, opts deploy.Options) (*deploy.Session, error) {
	opts.ManifestPath = o.manifestPath
	opts.Services = o.services
	opts.Force = o.force
	opts.Version = o.version

	return deploy.NewSession(cmd.Context(), osfs.New(), proc.NewRunner(), cmd.OutOrStdout(), opts)
}
