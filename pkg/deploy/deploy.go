// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

// Package deploy sequences build, push, tag, reconcile and apply per
// service. Execution is strictly sequential: one external command at a
// time, and any single-service failure aborts the whole invocation.
package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.opendefense.cloud/shipyard/pkg/docker"
	"go.opendefense.cloud/shipyard/pkg/git"
	"go.opendefense.cloud/shipyard/pkg/image"
	"go.opendefense.cloud/shipyard/pkg/kube"
	"go.opendefense.cloud/shipyard/pkg/logging"
	"go.opendefense.cloud/shipyard/pkg/manifest"
	"go.opendefense.cloud/shipyard/pkg/proc"
)

// Version selectors understood by the --version flag. Anything else is a
// literal tag.
const (
	VersionCommit = "commit"
	VersionDate   = "date"
)

// commitSHAEnv is consulted when the commit hash cannot be determined
// locally, which happens in shallow CI checkouts.
const commitSHAEnv = "CI_COMMIT_SHA"

const defaultWaitTimeout = 2 * time.Minute

// Options configure one invocation.
type Options struct {
	// ManifestPath overrides the conventional manifest location.
	ManifestPath string
	// Services restricts the invocation to the named services. Empty means
	// all services.
	Services []string
	// Force skips the version-control checks.
	Force bool
	// Version selects the version tag source: "commit", "date" or a
	// literal tag.
	Version string
	// ExtraTags are additional tags to build and push. Tags containing a
	// tag separator are taken as complete references.
	ExtraTags []string
	// NoCache disables the builder's layer cache.
	NoCache bool
	// DeployOnly applies configuration without building or pushing.
	DeployOnly bool
	// SetImageOnly updates the live workload's image without applying the
	// full configuration.
	SetImageOnly bool
	// ValidateOnly only prints the diff against the live cluster state.
	ValidateOnly bool
	// Wait blocks until a deployed Deployment reports the new image.
	Wait bool
	// WaitTimeout bounds the rollout wait.
	WaitTimeout time.Duration
	// Format is an optional go-template for the image command's output.
	Format string
}

// Session is one orchestrated invocation over a loaded, filtered manifest
// and a resolved version tag.
type Session struct {
	manifest *manifest.Manifest
	version  string
	opts     Options
	docker   *docker.Docker
	kubectl  *kube.Kubectl
	rec      *kube.Reconciler
	out      io.Writer
}

// NewSession loads and filters the manifest, performs the version-control
// checks and resolves the version tag.
func NewSession(ctx context.Context, fsys vfs.FileSystem, runner proc.Runner, out io.Writer, opts Options) (*Session, error) {
	if opts.ManifestPath == "" {
		opts.ManifestPath = manifest.DefaultPath
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = defaultWaitTimeout
	}

	m, err := manifest.Load(fsys, opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	m, err = m.Filter(opts.Services)
	if err != nil {
		return nil, err
	}

	version, err := resolveVersion(ctx, git.New(runner), opts)
	if err != nil {
		return nil, err
	}

	return &Session{
		manifest: m,
		version:  version,
		opts:     opts,
		docker:   docker.New(runner),
		kubectl:  kube.NewKubectl(runner),
		rec:      kube.NewReconciler(fsys),
		out:      out,
	}, nil
}

// Version returns the resolved version tag.
func (s *Session) Version() string {
	return s.version
}

func resolveVersion(ctx context.Context, g *git.Git, opts Options) (string, error) {
	logger := logging.LoggerFromContext(ctx)

	if opts.Force {
		logger.Info("used --force, skipping repository checks; I hope you know what you are doing")
	} else {
		if !g.HasRepository(ctx) {
			return "", fmt.Errorf("there is no git repository available: use --force if you don't care about it")
		}
		clean, err := g.IsClean(ctx)
		if err != nil {
			return "", err
		}
		if !clean {
			return "", fmt.Errorf("git repository is dirty: commit your changes or use --force if you don't care about it")
		}
	}

	switch opts.Version {
	case "", VersionCommit:
		hash, err := g.Head(ctx)
		if err != nil {
			if sha := os.Getenv(commitSHAEnv); sha != "" {
				logger.Info("cannot determine commit hash, falling back to $" + commitSHAEnv)
				return sha, nil
			}
			return "", fmt.Errorf("cannot determine commit hash: use an alternative --version variant")
		}
		return hash, nil
	case VersionDate:
		return time.Now().UTC().Format("v20060102150405"), nil
	default:
		return opts.Version, nil
	}
}

// versionTag returns the service's primary version-tagged reference.
func (s *Session) versionTag(svc manifest.Service) (image.Reference, error) {
	d, err := svc.Docker()
	if err != nil {
		return image.Reference{}, err
	}
	return image.New(d.Image, s.version)
}

// tags returns the full tag set for a service: the primary version tag
// followed by the extra tags.
func (s *Session) tags(svc manifest.Service) ([]image.Reference, error) {
	primary, err := s.versionTag(svc)
	if err != nil {
		return nil, err
	}

	refs := []image.Reference{primary}
	for _, tag := range s.opts.ExtraTags {
		if strings.Contains(tag, ":") {
			ref, err := image.Parse(tag)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
			continue
		}
		refs = append(refs, primary.WithTag(tag))
	}
	return refs, nil
}

// Build builds every service's image under its full tag set.
func (s *Session) Build(ctx context.Context) error {
	for _, svc := range s.manifest.Services() {
		if err := s.buildService(ctx, svc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) buildService(ctx context.Context, svc manifest.Service) error {
	d, err := svc.Docker()
	if err != nil {
		return err
	}
	tags, err := s.tags(svc)
	if err != nil {
		return err
	}

	logging.LoggerFromContext(ctx).Info("building image", "service", svc.Name, "image", tags[0].String())
	return s.docker.Build(ctx, d.Dir, d.Dockerfile, tags, s.opts.NoCache)
}

// Push builds every service first, then pushes every tag. There is no
// content-addressed skip; push always rebuilds.
func (s *Session) Push(ctx context.Context) error {
	if err := s.Build(ctx); err != nil {
		return err
	}

	logger := logging.LoggerFromContext(ctx)
	for _, svc := range s.manifest.Services() {
		tags, err := s.tags(svc)
		if err != nil {
			return err
		}
		for _, tag := range tags {
			logger.Info("pushing image", "service", svc.Name, "image", tag.String())
			if err := s.docker.Push(ctx, tag); err != nil {
				return err
			}
		}
	}
	return nil
}

// Pull pulls every service's primary version tag.
func (s *Session) Pull(ctx context.Context) error {
	logger := logging.LoggerFromContext(ctx)
	for _, svc := range s.manifest.Services() {
		tag, err := s.versionTag(svc)
		if err != nil {
			return err
		}
		logger.Info("pulling image", "service", svc.Name, "image", tag.String())
		if err := s.docker.Pull(ctx, tag); err != nil {
			return err
		}
	}
	return nil
}

// Image prints every service's primary version tag, optionally rendered
// through the --format template.
func (s *Session) Image(ctx context.Context) error {
	var tmpl *template.Template
	if s.opts.Format != "" {
		var err error
		tmpl, err = template.New("image").Funcs(funcMap()).Parse(s.opts.Format)
		if err != nil {
			return fmt.Errorf("invalid format template: %w", err)
		}
	}

	for _, svc := range s.manifest.Services() {
		tag, err := s.versionTag(svc)
		if err != nil {
			return err
		}
		if tmpl == nil {
			fmt.Fprintln(s.out, tag.String())
			continue
		}

		data := struct {
			Service    string
			Repository string
			Tag        string
			Reference  string
		}{svc.Name, tag.Repository, tag.Tag, tag.String()}
		if err := tmpl.Execute(s.out, data); err != nil {
			return fmt.Errorf("rendering format template: %w", err)
		}
		fmt.Fprintln(s.out)
	}
	return nil
}

// Run runs every service's primary version tag interactively with the
// given command arguments. Extra tags are expanded but not used here.
func (s *Session) Run(ctx context.Context, args []string) error {
	for _, svc := range s.manifest.Services() {
		tags, err := s.tags(svc)
		if err != nil {
			return err
		}
		if err := s.docker.Run(ctx, tags[0], args); err != nil {
			return err
		}
	}
	return nil
}

// List prints every service with its manifest sections, in declaration
// order.
func (s *Session) List(ctx context.Context) error {
	for _, svc := range s.manifest.Services() {
		fmt.Fprintf(s.out, "%s (%s)\n", svc.Name, strings.Join(svc.Sections(), ","))
	}
	return nil
}

// Deploy rolls every service out to env. Unless the invocation is
// deploy-only or validate-only, images are built and pushed first.
func (s *Session) Deploy(ctx context.Context, env manifest.Environment) error {
	if !s.opts.DeployOnly && !s.opts.ValidateOnly {
		if err := s.Push(ctx); err != nil {
			return err
		}
	}

	for _, svc := range s.manifest.Services() {
		if err := s.deployService(ctx, svc, env); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) deployService(ctx context.Context, svc manifest.Service, env manifest.Environment) error {
	logger := logging.LoggerFromContext(ctx).WithValues("service", svc.Name, "environment", string(env))

	versionTag, err := s.versionTag(svc)
	if err != nil {
		return err
	}

	result, err := s.rec.Reconcile(ctx, svc, env, versionTag)
	if err != nil {
		return err
	}

	if s.opts.ValidateOnly {
		diff, err := s.kubectl.Diff(ctx, result.Documents, result.Namespace)
		if err != nil {
			return err
		}
		if strings.TrimSpace(diff) != "" {
			logger.Info("found differences", "image", versionTag.String())
			fmt.Fprintln(s.out, diff)
		} else {
			logger.Info("no changes found", "image", versionTag.String())
		}
		return nil
	}

	// Promotion tags: every deploy refreshes latest, production deploys
	// additionally refresh master.
	if env == manifest.Production {
		master := versionTag.WithTag("master")
		logger.Info("tagging image", "from", versionTag.String(), "to", master.String())
		if err := s.docker.Tag(ctx, versionTag, master, true); err != nil {
			return err
		}
	}
	latest := versionTag.WithTag("latest")
	logger.Info("tagging image", "from", versionTag.String(), "to", latest.String())
	if err := s.docker.Tag(ctx, versionTag, latest, true); err != nil {
		return err
	}

	namespaces, err := s.kubectl.Namespaces(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(namespaces, result.Namespace) {
		return fmt.Errorf("namespace %s does not exist in the target cluster", result.Namespace)
	}

	logger.Info("deploying image", "image", versionTag.String())
	if s.opts.SetImageOnly {
		workload := fmt.Sprintf("%s/%s", result.Kind, result.Name)
		if err := s.kubectl.SetImage(ctx, result.Namespace, workload, result.Container, versionTag.String()); err != nil {
			return err
		}
	} else {
		out, err := s.kubectl.Apply(ctx, result.Documents, result.Namespace)
		if err != nil {
			return err
		}
		logger.V(1).Info("applied configuration", "output", out)
	}

	if s.opts.Wait {
		if result.Kind != manifest.Deployment {
			logger.Info("skipping rollout wait, workload is not a deployment")
			return nil
		}
		return s.waitForRollout(ctx, result, versionTag)
	}
	return nil
}

// waitForRollout polls the live deployment until its container reports the
// freshly deployed image.
func (s *Session) waitForRollout(ctx context.Context, result *kube.Result, want image.Reference) error {
	logger := logging.LoggerFromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = s.opts.WaitTimeout

	operation := func() error {
		current, err := s.kubectl.CurrentImage(ctx, result.Namespace, result.Name, result.Container)
		if err != nil {
			return backoff.Permanent(err)
		}
		if current != want.String() {
			return fmt.Errorf("deployment %s still reports image %s", result.Name, current)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("waiting for rollout of %s: %w", result.Name, err)
	}
	logger.Info("rollout complete", "deployment", result.Name, "image", want.String())
	return nil
}
