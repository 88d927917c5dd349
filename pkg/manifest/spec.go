// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation"
)

// Environment is a deployment target. The manifest keys its Kubernetes
// sections by environment name.
type Environment string

const (
	// Production is the production environment.
	Production Environment = "k8s"
	// Staging is the staging environment.
	Staging Environment = "k8s-staging"
)

// DirName returns the directory token used in conventional configuration
// paths. Staging configurations live under a shortened directory name.
func (e Environment) DirName() string {
	if e == Staging {
		return "k8s-st"
	}
	return string(e)
}

// ServiceSpec describes one service of the manifest.
type ServiceSpec struct {
	Docker     *DockerSpec     `yaml:"docker"`
	K8S        *KubernetesSpec `yaml:"k8s"`
	K8SStaging *KubernetesSpec `yaml:"k8s-staging"`
}

func (s *ServiceSpec) environment(env Environment) *KubernetesSpec {
	switch env {
	case Production:
		return s.K8S
	case Staging:
		return s.K8SStaging
	}
	return nil
}

// DockerSpec describes how a service's image is built.
type DockerSpec struct {
	// Image is the image repository, without a tag.
	Image string `yaml:"image"`
	// Dockerfile is the build file path.
	Dockerfile string `yaml:"dockerfile" default:"./Dockerfile"`
	// Dir is the build context directory.
	Dir string `yaml:"dir" default:"."`
}

// UnmarshalYAML applies defaults before decoding, which struct tags alone
// do not support.
func (d *DockerSpec) UnmarshalYAML(node *yaml.Node) error {
	if err := defaults.Set(d); err != nil {
		return err
	}

	type plain DockerSpec
	return node.Decode((*plain)(d))
}

// WorkloadKind identifies the kind of Kubernetes resource a service
// deploys into.
type WorkloadKind string

const (
	// Deployment targets a Deployment resource.
	Deployment WorkloadKind = "deployment"
	// CronJob targets a CronJob resource.
	CronJob WorkloadKind = "cronjob"
)

// KubernetesSpec describes one (service, environment) deployment target.
type KubernetesSpec struct {
	// Namespace is the target namespace.
	Namespace string `yaml:"namespace"`
	// Deployment is the target Deployment name. Mutually exclusive with
	// CronJob.
	Deployment string `yaml:"deployment"`
	// CronJob is the target CronJob name. Mutually exclusive with
	// Deployment.
	CronJob string `yaml:"cronjob"`
	// Container is the container whose image gets patched.
	Container string `yaml:"container"`
	// InitContainer optionally names an init container that is patched to
	// the same image. Declaring it commits the configuration to its
	// presence.
	InitContainer string `yaml:"init-container"`
	// Configuration optionally overrides the conventional configuration
	// file path.
	Configuration string `yaml:"configuration"`
}

// Workload returns the declared workload kind and resource name.
func (s *KubernetesSpec) Workload() (WorkloadKind, string) {
	if s.CronJob != "" {
		return CronJob, s.CronJob
	}
	return Deployment, s.Deployment
}

// Validate checks the section's invariants: namespace and container are
// mandatory, and exactly one of deployment or cronjob must be set.
func (s *KubernetesSpec) Validate() error {
	if s.Namespace == "" {
		return fmt.Errorf("'namespace' must be specified")
	}
	if errs := validation.IsDNS1123Label(s.Namespace); len(errs) > 0 {
		return fmt.Errorf("invalid namespace %q: %s", s.Namespace, strings.Join(errs, ", "))
	}

	switch {
	case s.Deployment == "" && s.CronJob == "":
		return fmt.Errorf("'deployment' or 'cronjob' must be specified")
	case s.Deployment != "" && s.CronJob != "":
		return fmt.Errorf("'deployment' and 'cronjob' are mutually exclusive")
	}

	_, name := s.Workload()
	if errs := validation.IsDNS1123Subdomain(name); len(errs) > 0 {
		return fmt.Errorf("invalid workload name %q: %s", name, strings.Join(errs, ", "))
	}

	if s.Container == "" {
		return fmt.Errorf("'container' must be specified")
	}

	return nil
}
