// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"go.opendefense.cloud/shipyard/pkg/deploy"
)

func newImageCommand(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "image",
		Short: "Show the version-tagged image names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := root.session(cmd, deploy.Options{Format: format})
			if err != nil {
				return err
			}
			return session.Image(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "go-template rendered per service ({{.Service}}, {{.Repository}}, {{.Tag}}, {{.Reference}})")
	return cmd
}

func newRunCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [command...]",
		Short: "Run an interactive command in the service images",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := root.session(cmd, deploy.Options{})
			if err != nil {
				return err
			}
			return session.Run(cmd.Context(), args)
		},
	}

	// Everything after the first positional argument belongs to the
	// container command.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newListCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the services declared in the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := root.session(cmd, deploy.Options{})
			if err != nil {
				return err
			}
			return session.List(cmd.Context())
		},
	}
}
