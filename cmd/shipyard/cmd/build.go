// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"go.opendefense.cloud/shipyard/pkg/deploy"
)

func newBuildCommand(root *rootOptions) *cobra.Command {
	var (
		tags    []string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Only build service images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := root.session(cmd, deploy.Options{ExtraTags: tags, NoCache: noCache})
			if err != nil {
				return err
			}
			return session.Build(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&tags, "tag", "t", nil, "additional tags for the images")
	flags.BoolVar(&noCache, "no-cache", false, "pass --no-cache to the image build")
	return cmd
}

func newPushCommand(root *rootOptions) *cobra.Command {
	var (
		tags    []string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Build and push service images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := root.session(cmd, deploy.Options{ExtraTags: tags, NoCache: noCache})
			if err != nil {
				return err
			}
			return session.Push(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&tags, "tag", "t", nil, "additional tags for the images")
	flags.BoolVar(&noCache, "no-cache", false, "pass --no-cache to the image build")
	return cmd
}

func newPullCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Pull service images from the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := root.session(cmd, deploy.Options{})
			if err != nil {
				return err
			}
			return session.Pull(cmd.Context())
		},
	}
}
