// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"go.opendefense.cloud/shipyard/pkg/deploy"
	"go.opendefense.cloud/shipyard/pkg/manifest"
)

func newStagingCommand(root *rootOptions) *cobra.Command {
	return newDeployCommand(root, "staging", manifest.Staging,
		"Build, push and deploy images to the staging environment")
}

func newProductionCommand(root *rootOptions) *cobra.Command {
	return newDeployCommand(root, "production", manifest.Production,
		"Build, push and deploy images to the PRODUCTION environment")
}

func newDeployCommand(root *rootOptions, use string, env manifest.Environment, short string) *cobra.Command {
	var (
		tags         []string
		noCache      bool
		deployOnly   bool
		setImageOnly bool
		validate     bool
		wait         bool
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := root.session(cmd, deploy.Options{
				ExtraTags:    tags,
				NoCache:      noCache,
				DeployOnly:   deployOnly,
				SetImageOnly: setImageOnly,
				ValidateOnly: validate,
				Wait:         wait,
			})
			if err != nil {
				return err
			}
			return session.Deploy(cmd.Context(), env)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&tags, "tag", "t", nil, "additional tags for the images")
	flags.BoolVar(&noCache, "no-cache", false, "pass --no-cache to the image build")
	flags.BoolVar(&deployOnly, "deploy-only", false, "don't build and push, only apply the configuration")
	flags.BoolVar(&setImageOnly, "set-image-only", false, "only set the image on the live workload, without applying the configuration")
	flags.BoolVar(&validate, "validate", false, "only validate the configuration and show the diff against the cluster")
	flags.BoolVar(&wait, "wait", false, "wait until the deployment reports the new image")
	return cmd
}
