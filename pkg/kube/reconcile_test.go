// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

package kube

import (
	"context"
	"strings"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.opendefense.cloud/shipyard/pkg/image"
	"go.opendefense.cloud/shipyard/pkg/manifest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const deploymentConfig = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: myapp-dep
  namespace: prod
  labels:
    app: myapp
spec:
  replicas: 2
  template:
    spec:
      containers:
        - name: app
          image: myapp:old
          ports:
            - containerPort: 8080
        - name: sidecar
          image: otherapp:stable
`

const cronJobConfig = `apiVersion: batch/v1
kind: CronJob
metadata:
  name: cleanup
  namespace: prod
spec:
  schedule: "0 3 * * *"
  jobTemplate:
    spec:
      template:
        spec:
          initContainers:
            - name: init
              image: myapp:old
          containers:
            - name: job
              image: myapp:old
`

func webService(spec *manifest.KubernetesSpec) manifest.Service {
	return manifest.Service{
		Name: "web",
		Spec: manifest.ServiceSpec{
			Docker: &manifest.DockerSpec{Image: "myapp"},
			K8S:    spec,
		},
	}
}

var _ = Describe("Reconciler", func() {
	var (
		ctx  context.Context
		fsys vfs.FileSystem
		rec  *Reconciler
		ref  image.Reference
	)

	BeforeEach(func() {
		ctx = context.Background()
		fsys = memoryfs.New()
		Expect(fsys.MkdirAll("deploy/k8s", 0o755)).To(Succeed())
		rec = NewReconciler(fsys)

		var err error
		ref, err = image.New("myapp", "v1")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("ConfigPath", func() {
		It("derives the conventional path", func() {
			spec := &manifest.KubernetesSpec{}
			Expect(ConfigPath("web", manifest.Production, spec)).To(Equal("deploy/k8s/web.yml"))
		})

		It("maps staging to its own directory token", func() {
			spec := &manifest.KubernetesSpec{}
			Expect(ConfigPath("web", manifest.Staging, spec)).To(Equal("deploy/k8s-st/web.yml"))
		})

		It("prefers an explicit override", func() {
			spec := &manifest.KubernetesSpec{Configuration: "custom/web.yaml"}
			Expect(ConfigPath("web", manifest.Production, spec)).To(Equal("custom/web.yaml"))
		})
	})

	Describe("Reconcile", func() {
		It("patches the declared container image", func() {
			writeFile(fsys, "deploy/k8s/web.yml", deploymentConfig)
			svc := webService(&manifest.KubernetesSpec{Namespace: "prod", Deployment: "myapp-dep", Container: "app"})

			result, err := rec.Reconcile(ctx, svc, manifest.Production, ref)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Namespace).To(Equal("prod"))
			Expect(result.Kind).To(Equal(manifest.Deployment))
			Expect(result.Container).To(Equal("app"))

			doc := result.Documents.Documents()[0]
			containers := lookup(doc, "spec", "template", "spec", "containers")
			Expect(scalar(mapValue(containers.Content[0], "image"))).To(Equal("myapp:v1"))
			// The sidecar keeps its image.
			Expect(scalar(mapValue(containers.Content[1], "image"))).To(Equal("otherapp:stable"))
		})

		It("changes nothing but the image on re-serialization", func() {
			writeFile(fsys, "deploy/k8s/web.yml", deploymentConfig)
			svc := webService(&manifest.KubernetesSpec{Namespace: "prod", Deployment: "myapp-dep", Container: "app"})

			source, err := LoadDocuments(fsys, "deploy/k8s/web.yml")
			Expect(err).NotTo(HaveOccurred())
			before, err := source.Marshal()
			Expect(err).NotTo(HaveOccurred())

			result, err := rec.Reconcile(ctx, svc, manifest.Production, ref)
			Expect(err).NotTo(HaveOccurred())
			after, err := result.Documents.Marshal()
			Expect(err).NotTo(HaveOccurred())

			Expect(string(after)).To(Equal(strings.Replace(string(before), "myapp:old", "myapp:v1", 1)))
		})

		It("patches from pristine state on every call", func() {
			writeFile(fsys, "deploy/k8s/web.yml", deploymentConfig)
			svc := webService(&manifest.KubernetesSpec{Namespace: "prod", Deployment: "myapp-dep", Container: "app"})

			_, err := rec.Reconcile(ctx, svc, manifest.Production, ref)
			Expect(err).NotTo(HaveOccurred())

			v2, err := image.New("myapp", "v2")
			Expect(err).NotTo(HaveOccurred())
			result, err := rec.Reconcile(ctx, svc, manifest.Production, v2)
			Expect(err).NotTo(HaveOccurred())

			out, err := result.Documents.Marshal()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).To(ContainSubstring("myapp:v2"))
			Expect(string(out)).NotTo(ContainSubstring("myapp:v1"))
		})

		It("resolves the cronjob template path", func() {
			writeFile(fsys, "deploy/k8s/web.yml", cronJobConfig)
			svc := webService(&manifest.KubernetesSpec{Namespace: "prod", CronJob: "cleanup", Container: "job", InitContainer: "init"})

			result, err := rec.Reconcile(ctx, svc, manifest.Production, ref)
			Expect(err).NotTo(HaveOccurred())

			doc := result.Documents.Documents()[0]
			containers := lookup(doc, "spec", "jobTemplate", "spec", "template", "spec", "containers")
			Expect(scalar(mapValue(containers.Content[0], "image"))).To(Equal("myapp:v1"))
			initContainers := lookup(doc, "spec", "jobTemplate", "spec", "template", "spec", "initContainers")
			Expect(scalar(mapValue(initContainers.Content[0], "image"))).To(Equal("myapp:v1"))
		})

		It("matches the resource kind case-insensitively", func() {
			writeFile(fsys, "deploy/k8s/web.yml", deploymentConfig)
			svc := webService(&manifest.KubernetesSpec{Namespace: "prod", Deployment: "myapp-dep", Container: "app"})

			_, err := rec.Reconcile(ctx, svc, manifest.Production, ref)
			Expect(err).NotTo(HaveOccurred())
		})

		It("fails when the resource is missing", func() {
			writeFile(fsys, "deploy/k8s/web.yml", deploymentConfig)
			svc := webService(&manifest.KubernetesSpec{Namespace: "prod", Deployment: "unknown-dep", Container: "app"})

			_, err := rec.Reconcile(ctx, svc, manifest.Production, ref)
			Expect(err).To(MatchError("deployment/unknown-dep not found in deploy/k8s/web.yml"))
		})

		It("fails on a namespace mismatch, naming both values", func() {
			writeFile(fsys, "deploy/k8s/web.yml", strings.Replace(deploymentConfig, "namespace: prod", "namespace: staging", 1))
			svc := webService(&manifest.KubernetesSpec{Namespace: "prod", Deployment: "myapp-dep", Container: "app"})

			_, err := rec.Reconcile(ctx, svc, manifest.Production, ref)
			var mismatch *NamespaceMismatchError
			Expect(err).To(BeAssignableToTypeOf(mismatch))
			Expect(err).To(MatchError(ContainSubstring("expected: prod")))
			Expect(err).To(MatchError(ContainSubstring("found: staging")))
		})

		It("validates the first match in file order and never skips it", func() {
			wrongFirst := strings.Replace(deploymentConfig, "namespace: prod", "namespace: staging", 1) + "---\n" + deploymentConfig
			writeFile(fsys, "deploy/k8s/web.yml", wrongFirst)
			svc := webService(&manifest.KubernetesSpec{Namespace: "prod", Deployment: "myapp-dep", Container: "app"})

			// The second document would validate, but first match wins.
			_, err := rec.Reconcile(ctx, svc, manifest.Production, ref)
			Expect(err).To(MatchError(ContainSubstring("found: staging")))
		})

		It("fails when the container is missing", func() {
			writeFile(fsys, "deploy/k8s/web.yml", deploymentConfig)
			svc := webService(&manifest.KubernetesSpec{Namespace: "prod", Deployment: "myapp-dep", Container: "nope"})

			_, err := rec.Reconcile(ctx, svc, manifest.Production, ref)
			Expect(err).To(MatchError("container nope not found in deploy/k8s/web.yml"))
		})

		It("fails when a declared init container is missing", func() {
			writeFile(fsys, "deploy/k8s/web.yml", deploymentConfig)
			svc := webService(&manifest.KubernetesSpec{Namespace: "prod", Deployment: "myapp-dep", Container: "app", InitContainer: "init"})

			_, err := rec.Reconcile(ctx, svc, manifest.Production, ref)
			Expect(err).To(MatchError(ContainSubstring("missing key spec.template.spec.initContainers")))
		})

		It("fails when the document image points at another repository", func() {
			svc := webService(&manifest.KubernetesSpec{Namespace: "prod", Deployment: "myapp-dep", Container: "sidecar"})
			writeFile(fsys, "deploy/k8s/web.yml", deploymentConfig)

			_, err := rec.Reconcile(ctx, svc, manifest.Production, ref)
			var mismatch *ImageMismatchError
			Expect(err).To(BeAssignableToTypeOf(mismatch))
			Expect(err).To(MatchError(ContainSubstring("expected: myapp")))
			Expect(err).To(MatchError(ContainSubstring("found: otherapp")))
		})

		It("fails when the environment section is absent", func() {
			svc := manifest.Service{Name: "web", Spec: manifest.ServiceSpec{Docker: &manifest.DockerSpec{Image: "myapp"}}}

			_, err := rec.Reconcile(ctx, svc, manifest.Staging, ref)
			Expect(err).To(MatchError("service web: there is no k8s-staging section"))
		})

		It("fails when the configuration file is absent", func() {
			svc := webService(&manifest.KubernetesSpec{Namespace: "prod", Deployment: "myapp-dep", Container: "app"})

			_, err := rec.Reconcile(ctx, svc, manifest.Production, ref)
			Expect(err).To(MatchError(ContainSubstring("configuration file deploy/k8s/web.yml not found")))
		})
	})
})
