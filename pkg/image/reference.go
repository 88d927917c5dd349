// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

// Package image handles container image references. References are parsed
// structurally instead of being split on the first colon, so repositories
// with a registry port (registry:5000/app) are handled correctly.
package image

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
)

// Reference is a container image reference split into its repository and
// tag components. The repository is kept exactly as written; no default
// registry is filled in.
type Reference struct {
	Repository string
	Tag        string
}

// Parse parses a reference of the form [registry[:port]/]repository[:tag].
// A missing tag defaults to "latest".
func Parse(s string) (Reference, error) {
	tag, err := name.NewTag(s, name.WithDefaultRegistry(""), name.WithDefaultTag("latest"))
	if err != nil {
		return Reference{}, fmt.Errorf("invalid image reference %q: %w", s, err)
	}

	repository := tag.RepositoryStr()
	if registry := tag.RegistryStr(); registry != "" {
		repository = registry + "/" + repository
	}

	return Reference{Repository: repository, Tag: tag.TagStr()}, nil
}

// New builds a validated reference from a repository and a tag.
func New(repository, tag string) (Reference, error) {
	return Parse(repository + ":" + tag)
}

func (r Reference) String() string {
	return r.Repository + ":" + r.Tag
}

// WithTag returns a copy of the reference pointing at a different tag.
func (r Reference) WithTag(tag string) Reference {
	return Reference{Repository: r.Repository, Tag: tag}
}
