// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

package kube

import (
	"context"
	"fmt"

	"github.com/mandelsoft/vfs/pkg/memoryfs"

	"go.opendefense.cloud/shipyard/pkg/proc"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeRunner records every command and answers through a handler.
type fakeRunner struct {
	commands []proc.Command
	handler  func(proc.Command) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, cmd proc.Command) ([]byte, error) {
	f.commands = append(f.commands, cmd)
	if f.handler == nil {
		return nil, nil
	}
	return f.handler(cmd)
}

var _ = Describe("Kubectl", func() {
	var (
		ctx    context.Context
		runner *fakeRunner
		kc     *Kubectl
		docs   *DocumentSet
	)

	BeforeEach(func() {
		ctx = context.Background()
		runner = &fakeRunner{}
		kc = NewKubectl(runner)

		fsys := memoryfs.New()
		writeFile(fsys, "config.yml", twoDocuments)
		var err error
		docs, err = LoadDocuments(fsys, "config.yml")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Apply", func() {
		It("feeds the serialized documents through standard input", func() {
			out, err := kc.Apply(ctx, docs, "prod")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeEmpty())

			Expect(runner.commands).To(HaveLen(1))
			cmd := runner.commands[0]
			Expect(cmd.Name).To(Equal("kubectl"))
			Expect(cmd.Args).To(Equal([]string{"apply", "--namespace", "prod", "-f", "-"}))
			Expect(string(cmd.Stdin)).To(ContainSubstring("kind: Deployment"))
			Expect(string(cmd.Stdin)).To(ContainSubstring("kind: Service"))
		})

		It("wraps failures with the namespace", func() {
			runner.handler = func(proc.Command) ([]byte, error) {
				return nil, fmt.Errorf("connection refused")
			}

			_, err := kc.Apply(ctx, docs, "prod")
			Expect(err).To(MatchError(ContainSubstring("failed to apply configuration to namespace prod")))
		})
	})

	Describe("Diff", func() {
		It("treats exit code 1 as differences, not failure", func() {
			_, err := kc.Diff(ctx, docs, "prod")
			Expect(err).NotTo(HaveOccurred())

			cmd := runner.commands[0]
			Expect(cmd.Args).To(Equal([]string{"diff", "--namespace", "prod", "-f", "-"}))
			Expect(cmd.ExitFilter).NotTo(BeNil())
			Expect(cmd.ExitFilter(1)).To(BeTrue())
			Expect(cmd.ExitFilter(2)).To(BeFalse())
		})
	})

	Describe("SetImage", func() {
		It("patches a single container on the live workload", func() {
			Expect(kc.SetImage(ctx, "prod", "deployment/myapp-dep", "app", "myapp:v1")).To(Succeed())

			cmd := runner.commands[0]
			Expect(cmd.Args).To(Equal([]string{"set", "image", "--namespace", "prod", "deployment/myapp-dep", "app=myapp:v1"}))
		})
	})

	Describe("CurrentImage", func() {
		It("selects the container by name and trims the output", func() {
			runner.handler = func(proc.Command) ([]byte, error) {
				return []byte("myapp:v1\n"), nil
			}

			img, err := kc.CurrentImage(ctx, "prod", "myapp-dep", "app")
			Expect(err).NotTo(HaveOccurred())
			Expect(img).To(Equal("myapp:v1"))

			cmd := runner.commands[0]
			Expect(cmd.Args).To(HaveLen(6))
			Expect(cmd.Args[:5]).To(Equal([]string{"get", "deployment", "myapp-dep", "--namespace", "prod"}))
			Expect(cmd.Args[5]).To(ContainSubstring(`@.name=="app"`))
		})
	})

	Describe("Namespaces", func() {
		It("skips the column header and keeps the first field", func() {
			runner.handler = func(proc.Command) ([]byte, error) {
				return []byte("NAME      STATUS   AGE\nprod      Active   12d\nstaging   Active   12d\n"), nil
			}

			namespaces, err := kc.Namespaces(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(namespaces).To(Equal([]string{"prod", "staging"}))
		})
	})
})
