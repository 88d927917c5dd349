// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

// Package manifest parses the declarative deployment manifest. The manifest
// maps service names to build and deployment settings; service declaration
// order is preserved so multi-service runs stay deterministic.
package manifest

import (
	"fmt"

	"github.com/mandelsoft/vfs/pkg/vfs"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the conventional manifest location, relative to the
// repository root. JSON is valid YAML, so both encodings load the same way.
const DefaultPath = "deploy/deploy.json"

// Service is a single named entry of the manifest.
type Service struct {
	Name string
	Spec ServiceSpec
}

// Docker returns the service's docker section, failing when it is absent or
// lacks an image.
func (s Service) Docker() (*DockerSpec, error) {
	if s.Spec.Docker == nil {
		return nil, fmt.Errorf("service %s: missing docker specification", s.Name)
	}
	if s.Spec.Docker.Image == "" {
		return nil, fmt.Errorf("service %s: docker.image must be specified", s.Name)
	}
	return s.Spec.Docker, nil
}

// Environment returns the service's section for the given environment,
// failing when the section is absent.
func (s Service) Environment(env Environment) (*KubernetesSpec, error) {
	spec := s.Spec.environment(env)
	if spec == nil {
		return nil, fmt.Errorf("service %s: there is no %s section", s.Name, env)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("service %s: %w", s.Name, err)
	}
	return spec, nil
}

// Sections lists the sections present on the service, in manifest order.
func (s Service) Sections() []string {
	var sections []string
	if s.Spec.Docker != nil {
		sections = append(sections, "docker")
	}
	if s.Spec.K8S != nil {
		sections = append(sections, string(Production))
	}
	if s.Spec.K8SStaging != nil {
		sections = append(sections, string(Staging))
	}
	return sections
}

// Manifest is the ordered set of services declared in the manifest file.
// It is immutable after loading.
type Manifest struct {
	services []Service
	index    map[string]int
}

// Load reads and parses the manifest at path.
func Load(fsys vfs.FileSystem, path string) (*Manifest, error) {
	data, err := vfs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("manifest %s not found: check your working directory: %w", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("malformed manifest %s: %w", path, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("manifest %s is empty", path)
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("manifest %s must map service names to specifications", path)
	}

	m := &Manifest{index: make(map[string]int)}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		name := mapping.Content[i].Value
		if _, exists := m.index[name]; exists {
			return nil, fmt.Errorf("manifest %s declares service %q twice", path, name)
		}

		var spec ServiceSpec
		if err := mapping.Content[i+1].Decode(&spec); err != nil {
			return nil, fmt.Errorf("malformed specification of service %q in %s: %w", name, path, err)
		}

		m.index[name] = len(m.services)
		m.services = append(m.services, Service{Name: name, Spec: spec})
	}

	return m, nil
}

// Services returns all services in declaration order.
func (m *Manifest) Services() []Service {
	return m.services
}

// Get returns the named service.
func (m *Manifest) Get(name string) (Service, bool) {
	i, ok := m.index[name]
	if !ok {
		return Service{}, false
	}
	return m.services[i], true
}

// Filter returns a manifest restricted to the named services, preserving
// declaration order. An unknown name fails the whole call. An empty name
// list returns the manifest unchanged.
func (m *Manifest) Filter(names []string) (*Manifest, error) {
	if len(names) == 0 {
		return m, nil
	}

	requested := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := m.index[name]; !ok {
			return nil, fmt.Errorf("unknown service: %s", name)
		}
		requested[name] = true
	}

	filtered := &Manifest{index: make(map[string]int)}
	for _, svc := range m.services {
		if requested[svc.Name] {
			filtered.index[svc.Name] = len(filtered.services)
			filtered.services = append(filtered.services, svc)
		}
	}
	return filtered, nil
}
