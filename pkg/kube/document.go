// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

// Package kube loads per-environment Kubernetes configuration documents and
// reconciles them against the deployment manifest. Documents are kept as
// yaml.v3 nodes so that patching a container image leaves every other field
// of the file untouched, including field order.
package kube

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mandelsoft/vfs/pkg/vfs"
	"gopkg.in/yaml.v3"
)

// DocumentSet is an ordered sequence of resource documents loaded from one
// configuration file. Sets are loaded fresh per reconciliation and never
// cached.
type DocumentSet struct {
	docs []*yaml.Node
}

// LoadDocuments reads a multi-document configuration file from fsys.
func LoadDocuments(fsys vfs.FileSystem, path string) (*DocumentSet, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("configuration file %s not found: check whether the deployment manifest is configured properly", path)
	}
	defer f.Close()

	set := &DocumentSet{}
	dec := yaml.NewDecoder(f)
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed configuration file %s: %w", path, err)
		}
		set.docs = append(set.docs, &doc)
	}

	return set, nil
}

// Documents returns the document nodes in file order.
func (s *DocumentSet) Documents() []*yaml.Node {
	return s.docs
}

// Clone returns a deep copy of the set. The caller owns the copy; the
// original is never mutated by reconciliation.
func (s *DocumentSet) Clone() *DocumentSet {
	clone := &DocumentSet{docs: make([]*yaml.Node, len(s.docs))}
	for i, doc := range s.docs {
		clone.docs[i] = cloneNode(doc)
	}
	return clone
}

// Marshal serializes the set as a multi-document YAML stream, suitable for
// feeding to kubectl on standard input.
func (s *DocumentSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, doc := range s.docs {
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("serializing configuration: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("serializing configuration: %w", err)
	}
	return buf.Bytes(), nil
}

func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	clone := *n
	clone.Alias = cloneNode(n.Alias)
	if n.Content != nil {
		clone.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			clone.Content[i] = cloneNode(child)
		}
	}
	return &clone
}

// mapValue returns the value node for key within a mapping. Document nodes
// are unwrapped first.
func mapValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func lookup(n *yaml.Node, path ...string) *yaml.Node {
	for _, key := range path {
		n = mapValue(n, key)
		if n == nil {
			return nil
		}
	}
	return n
}

func scalar(n *yaml.Node) string {
	if n == nil {
		return ""
	}
	return n.Value
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}
