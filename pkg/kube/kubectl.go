// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

package kube

import (
	"context"
	"fmt"
	"strings"

	"github.com/mandelsoft/goutils/errors"

	"go.opendefense.cloud/shipyard/pkg/proc"
)

// Kubectl drives cluster operations through the kubectl executable.
// Configuration payloads are handed over on standard input.
type Kubectl struct {
	runner proc.Runner
}

// NewKubectl creates a Kubectl using the given process runner.
func NewKubectl(runner proc.Runner) *Kubectl {
	return &Kubectl{runner: runner}
}

// Apply applies the documents to the cluster in the given namespace.
func (k *Kubectl) Apply(ctx context.Context, docs *DocumentSet, namespace string) (string, error) {
	payload, err := docs.Marshal()
	if err != nil {
		return "", err
	}

	out, err := k.runner.Run(ctx, proc.Command{
		Name:  "kubectl",
		Args:  []string{"apply", "--namespace", namespace, "-f", "-"},
		Stdin: payload,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to apply configuration to namespace %s", namespace)
	}
	return string(out), nil
}

// Diff returns the difference between the documents and the live cluster
// state. kubectl diff exits 1 when differences exist; both 0 and 1 count as
// success, anything else is a failure.
func (k *Kubectl) Diff(ctx context.Context, docs *DocumentSet, namespace string) (string, error) {
	payload, err := docs.Marshal()
	if err != nil {
		return "", err
	}

	out, err := k.runner.Run(ctx, proc.Command{
		Name:       "kubectl",
		Args:       []string{"diff", "--namespace", namespace, "-f", "-"},
		Stdin:      payload,
		ExitFilter: func(code int) bool { return code == 1 },
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to diff configuration against namespace %s", namespace)
	}
	return string(out), nil
}

// SetImage updates a single container image on a live workload without
// applying the full configuration.
func (k *Kubectl) SetImage(ctx context.Context, namespace, workload, container, image string) error {
	_, err := k.runner.Run(ctx, proc.Command{
		Name: "kubectl",
		Args: []string{"set", "image", "--namespace", namespace, workload, fmt.Sprintf("%s=%s", container, image)},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to set image on %s", workload)
	}
	return nil
}

// CurrentImage queries the image the named container currently runs in the
// deployment.
func (k *Kubectl) CurrentImage(ctx context.Context, namespace, deployment, container string) (string, error) {
	jsonpath := fmt.Sprintf(`-o=jsonpath={..containers[?(@.name=="%s")].image}`, container)

	out, err := k.runner.Run(ctx, proc.Command{
		Name: "kubectl",
		Args: []string{"get", "deployment", deployment, "--namespace", namespace, jsonpath},
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to query current image of deployment %s", deployment)
	}
	return strings.TrimSpace(string(out)), nil
}

// Namespaces lists the namespaces of the cluster.
func (k *Kubectl) Namespaces(ctx context.Context) ([]string, error) {
	out, err := k.runner.Run(ctx, proc.Command{
		Name: "kubectl",
		Args: []string{"get", "namespaces"},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list namespaces")
	}

	var namespaces []string
	lines := strings.Split(string(out), "\n")
	for _, line := range lines[1:] { // first line is the column header
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		namespaces = append(namespaces, fields[0])
	}
	return namespaces, nil
}
