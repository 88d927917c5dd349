// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

package kube

import (
	"context"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"

	"go.opendefense.cloud/shipyard/pkg/image"
	"go.opendefense.cloud/shipyard/pkg/logging"
	"go.opendefense.cloud/shipyard/pkg/manifest"
)

// NamespaceMismatchError reports a configuration document whose namespace
// does not match the manifest.
type NamespaceMismatchError struct {
	Path     string
	Expected string
	Found    string
}

func (e *NamespaceMismatchError) Error() string {
	return fmt.Sprintf("configuration file %s does not apply to the namespace declared in the manifest (expected: %s, found: %s)",
		e.Path, e.Expected, e.Found)
}

// ImageMismatchError reports a container whose image repository does not
// match the manifest. It guards against patching the wrong image.
type ImageMismatchError struct {
	Path     string
	Expected string
	Found    string
}

func (e *ImageMismatchError) Error() string {
	return fmt.Sprintf("configuration file %s does not refer to the image declared in the manifest (expected: %s, found: %s)",
		e.Path, e.Expected, e.Found)
}

// ConfigPath resolves the configuration document path for a service in an
// environment: an explicit override from the manifest wins, otherwise the
// conventional deploy/<env-dir>/<service>.yml path applies.
func ConfigPath(service string, env manifest.Environment, spec *manifest.KubernetesSpec) string {
	if spec.Configuration != "" {
		return spec.Configuration
	}
	return fmt.Sprintf("deploy/%s/%s.yml", env.DirName(), service)
}

// Result is the outcome of one reconciliation: a patched copy of the
// configuration documents, ready for apply or diff.
type Result struct {
	// Path is the configuration file the documents were loaded from.
	Path string
	// Namespace is the validated target namespace.
	Namespace string
	// Kind and Name identify the patched workload.
	Kind manifest.WorkloadKind
	Name string
	// Container is the patched main container.
	Container string
	// Documents is the patched deep copy. The loader's originals are left
	// untouched.
	Documents *DocumentSet
}

// Reconciler locates a service's workload inside its environment
// configuration, validates manifest and document against each other, and
// produces a patched copy with an updated image reference.
type Reconciler struct {
	fs vfs.FileSystem
}

// NewReconciler creates a Reconciler reading configuration files from fsys.
func NewReconciler(fsys vfs.FileSystem) *Reconciler {
	return &Reconciler{fs: fsys}
}

// Reconcile loads the service's configuration for env and patches the
// declared container (and init container, when declared) to ref.
func (r *Reconciler) Reconcile(ctx context.Context, svc manifest.Service, env manifest.Environment, ref image.Reference) (*Result, error) {
	logger := logging.LoggerFromContext(ctx)

	spec, err := svc.Environment(env)
	if err != nil {
		return nil, err
	}

	path := ConfigPath(svc.Name, env, spec)
	source, err := LoadDocuments(r.fs, path)
	if err != nil {
		return nil, err
	}

	kind, name := spec.Workload()

	original, err := findWorkload(source, kind, name, path)
	if err != nil {
		return nil, err
	}

	patched := source.Clone()
	workload, _ := findWorkload(patched, kind, name, path)

	if found := scalar(lookup(workload, "metadata", "namespace")); found != spec.Namespace {
		return nil, &NamespaceMismatchError{Path: path, Expected: spec.Namespace, Found: found}
	}

	container, err := findContainer(workload, kind, "containers", spec.Container, path)
	if err != nil {
		return nil, err
	}
	if err := setContainerImage(container, ref, path); err != nil {
		return nil, err
	}

	if spec.InitContainer != "" {
		initContainer, err := findContainer(workload, kind, "initContainers", spec.InitContainer, path)
		if err != nil {
			return nil, err
		}
		if err := setContainerImage(initContainer, ref, path); err != nil {
			return nil, err
		}
	}

	if patch, err := mergePatch(original, workload); err == nil {
		logger.V(1).Info("reconciled workload", "path", path, "workload", fmt.Sprintf("%s/%s", kind, name), "patch", string(patch))
	}

	return &Result{
		Path:      path,
		Namespace: spec.Namespace,
		Kind:      kind,
		Name:      name,
		Container: spec.Container,
		Documents: patched,
	}, nil
}

// findWorkload returns the first document in file order whose kind matches
// case-insensitively and whose metadata.name equals name. Later documents
// are never considered once a match is found, even when the match fails
// subsequent validation.
func findWorkload(set *DocumentSet, kind manifest.WorkloadKind, name, path string) (*yaml.Node, error) {
	for _, doc := range set.docs {
		if !strings.EqualFold(scalar(mapValue(doc, "kind")), string(kind)) {
			continue
		}
		if scalar(lookup(doc, "metadata", "name")) == name {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("%s/%s not found in %s", kind, name, path)
}

// templatePath returns the path to the pod spec within a workload. An
// unknown kind is a programming error, not a configuration error.
func templatePath(kind manifest.WorkloadKind) ([]string, error) {
	switch kind {
	case manifest.Deployment:
		return []string{"spec", "template", "spec"}, nil
	case manifest.CronJob:
		return []string{"spec", "jobTemplate", "spec", "template", "spec"}, nil
	}
	return nil, fmt.Errorf("unhandled workload kind %q", kind)
}

func findContainer(workload *yaml.Node, kind manifest.WorkloadKind, listKey, name, path string) (*yaml.Node, error) {
	specPath, err := templatePath(kind)
	if err != nil {
		return nil, err
	}

	keys := append(specPath, listKey)
	list := lookup(workload, keys...)
	if list == nil || list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("missing key %s in %s", joinPath(keys), path)
	}

	for _, container := range list.Content {
		if scalar(mapValue(container, "name")) == name {
			return container, nil
		}
	}
	return nil, fmt.Errorf("container %s not found in %s", name, path)
}

// setContainerImage replaces the container's image with ref after checking
// that the current image points at the same repository.
func setContainerImage(container *yaml.Node, ref image.Reference, path string) error {
	imageNode := mapValue(container, "image")
	if imageNode == nil {
		return fmt.Errorf("container %s in %s has no 'image' specified", scalar(mapValue(container, "name")), path)
	}

	current, err := image.Parse(imageNode.Value)
	if err != nil {
		return fmt.Errorf("configuration file %s: %w", path, err)
	}
	if current.Repository != ref.Repository {
		return &ImageMismatchError{Path: path, Expected: ref.Repository, Found: current.Repository}
	}

	imageNode.Value = ref.String()
	return nil
}

// mergePatch renders the change between the original and the patched
// workload as a JSON merge patch, for debug logging.
func mergePatch(original, patched *yaml.Node) ([]byte, error) {
	originalJSON, err := nodeJSON(original)
	if err != nil {
		return nil, err
	}
	patchedJSON, err := nodeJSON(patched)
	if err != nil {
		return nil, err
	}
	return jsonpatch.CreateMergePatch(originalJSON, patchedJSON)
}

func nodeJSON(n *yaml.Node) ([]byte, error) {
	data, err := yaml.Marshal(n)
	if err != nil {
		return nil, err
	}
	return sigsyaml.YAMLToJSON(data)
}
