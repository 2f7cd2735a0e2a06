package k8s_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opst/knitfleet/pkg/domain"
	k8s "github.com/opst/knitfleet/pkg/domain/cluster/k8s"
	"github.com/opst/knitfleet/pkg/utils/try"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	kubefake "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

var cluster = domain.Cluster{
	Id: "cl-1", Name: "tokyo-a", APIAddress: "https://a.example.com", Token: "token", EnvironmentId: "env-1",
}

func resources() []*kubeapimeta.APIResourceList {
	return []*kubeapimeta.APIResourceList{
		{
			GroupVersion: "v1",
			APIResources: []kubeapimeta.APIResource{
				{Name: "namespaces", Namespaced: false, Kind: "Namespace"},
				{Name: "configmaps", Namespaced: true, Kind: "ConfigMap"},
				{Name: "services", Namespaced: true, Kind: "Service"},
			},
		},
		{
			GroupVersion: "apps/v1",
			APIResources: []kubeapimeta.APIResource{
				{Name: "deployments", Namespaced: true, Kind: "Deployment"},
			},
		},
		{
			GroupVersion: "gateway.networking.k8s.io/v1",
			APIResources: []kubeapimeta.APIResource{
				{Name: "gateways", Namespaced: true, Kind: "Gateway"},
				{Name: "httproutes", Namespaced: true, Kind: "HTTPRoute"},
			},
		},
	}
}

func connector(kube *kubefake.Clientset, dyn *dynamicfake.FakeDynamicClient) k8s.Connector {
	return k8s.ConnectorFunc(func(c domain.Cluster) (k8s.Clients, error) {
		return k8s.Clients{Kube: kube, Dynamic: dyn}, nil
	})
}

func manifest(apiVersion, kind, namespace, name string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion(apiVersion)
	u.SetKind(kind)
	u.SetNamespace(namespace)
	u.SetName(name)
	return u
}

type action struct {
	Verb      string
	Resource  string
	Namespace string
	Name      string
	PatchType types.PatchType
}

func dynamicActions(dyn *dynamicfake.FakeDynamicClient) []action {
	ret := []action{}
	for _, a := range dyn.Actions() {
		switch a := a.(type) {
		case k8stesting.PatchAction:
			ret = append(ret, action{
				Verb: a.GetVerb(), Resource: a.GetResource().Resource,
				Namespace: a.GetNamespace(), Name: a.GetName(), PatchType: a.GetPatchType(),
			})
		case k8stesting.DeleteAction:
			ret = append(ret, action{
				Verb: a.GetVerb(), Resource: a.GetResource().Resource,
				Namespace: a.GetNamespace(), Name: a.GetName(),
			})
		}
	}
	return ret
}

func TestApplyOrDelete(t *testing.T) {
	ctx := context.Background()

	manifests := []*unstructured.Unstructured{
		manifest("v1", "ConfigMap", "shop", "exporter-settings"),
		manifest("apps/v1", "Deployment", "shop", "exporter"),
		manifest("v1", "Service", "shop", "exporter"),
		manifest("gateway.networking.k8s.io/v1", "HTTPRoute", "shop", "exporter"),
	}

	t.Run("apply creates the namespace and applies manifests in order", func(t *testing.T) {
		kube := kubefake.NewSimpleClientset()
		kube.Resources = resources()
		dyn := dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())
		dyn.PrependReactor("patch", "*", func(a k8stesting.Action) (bool, runtime.Object, error) {
			pa := a.(k8stesting.PatchAction)
			obj := &unstructured.Unstructured{}
			if err := obj.UnmarshalJSON(pa.GetPatch()); err != nil {
				return true, nil, err
			}
			return true, obj, nil
		})

		testee := k8s.New(connector(kube, dyn), "")
		if err := testee.ApplyOrDelete(ctx, cluster, manifests, k8s.OperationApply); err != nil {
			t.Fatal(err)
		}

		want := []action{
			{Verb: "patch", Resource: "configmaps", Namespace: "shop", Name: "exporter-settings", PatchType: types.ApplyPatchType},
			{Verb: "patch", Resource: "deployments", Namespace: "shop", Name: "exporter", PatchType: types.ApplyPatchType},
			{Verb: "patch", Resource: "services", Namespace: "shop", Name: "exporter", PatchType: types.ApplyPatchType},
			{Verb: "patch", Resource: "httproutes", Namespace: "shop", Name: "exporter", PatchType: types.ApplyPatchType},
		}
		if diff := cmp.Diff(want, dynamicActions(dyn)); diff != "" {
			t.Errorf("actions (-want +got):\n%s", diff)
		}

		if _, err := kube.CoreV1().Namespaces().Get(ctx, "shop", kubeapimeta.GetOptions{}); err != nil {
			t.Errorf("namespace is not created: %v", err)
		}
	})

	t.Run("delete ignores missing resources", func(t *testing.T) {
		kube := kubefake.NewSimpleClientset()
		kube.Resources = resources()
		dyn := dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())

		testee := k8s.New(connector(kube, dyn), "")
		if err := testee.ApplyOrDelete(ctx, cluster, manifests, k8s.OperationDelete); err != nil {
			t.Fatal(err)
		}

		got := dynamicActions(dyn)
		if len(got) != len(manifests) {
			t.Fatalf("unexpected actions: %+v", got)
		}
		for i, a := range got {
			if a.Verb != "delete" || a.Name != manifests[i].GetName() {
				t.Errorf("action #%d: %+v", i, a)
			}
		}
		if _, err := kube.CoreV1().Namespaces().Get(ctx, "shop", kubeapimeta.GetOptions{}); !kubeerr.IsNotFound(err) {
			t.Errorf("namespace should not be created on delete: %v", err)
		}
	})

	t.Run("it stops at the first failure", func(t *testing.T) {
		kube := kubefake.NewSimpleClientset()
		kube.Resources = resources()
		dyn := dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())
		dyn.PrependReactor("patch", "deployments", func(a k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, kubeerr.NewForbidden(
				schema.GroupResource{Group: "apps", Resource: "deployments"}, "exporter", nil,
			)
		})
		dyn.PrependReactor("patch", "configmaps", func(a k8stesting.Action) (bool, runtime.Object, error) {
			return true, manifest("v1", "ConfigMap", "shop", "exporter-settings"), nil
		})

		testee := k8s.New(connector(kube, dyn), "")
		err := testee.ApplyOrDelete(ctx, cluster, manifests, k8s.OperationApply)
		if !kubeerr.IsForbidden(err) {
			t.Fatalf("expected forbidden, but got %v", err)
		}
		if got := dynamicActions(dyn); len(got) != 2 {
			t.Errorf("unexpected actions: %+v", got)
		}
	})

	t.Run("delete goes on after failures and reports all of them", func(t *testing.T) {
		kube := kubefake.NewSimpleClientset()
		kube.Resources = resources()
		dyn := dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())
		dyn.PrependReactor("delete", "deployments", func(a k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, kubeerr.NewForbidden(
				schema.GroupResource{Group: "apps", Resource: "deployments"}, "exporter", nil,
			)
		})

		testee := k8s.New(connector(kube, dyn), "")
		err := testee.ApplyOrDelete(ctx, cluster, []*unstructured.Unstructured{
			manifest("gateway.networking.k8s.io/v1alpha2", "TCPRoute", "shop", "exporter"),
			manifest("v1", "ConfigMap", "shop", "exporter-settings"),
			manifest("apps/v1", "Deployment", "shop", "exporter"),
			manifest("v1", "Service", "shop", "exporter"),
		}, k8s.OperationDelete)
		if !kubeerr.IsForbidden(err) {
			t.Errorf("expected forbidden, but got %v", err)
		}
		if err == nil || !strings.Contains(err.Error(), "TCPRoute") {
			t.Errorf("unmapped kind is not reported: %v", err)
		}

		want := []action{
			{Verb: "delete", Resource: "configmaps", Namespace: "shop", Name: "exporter-settings"},
			{Verb: "delete", Resource: "deployments", Namespace: "shop", Name: "exporter"},
			{Verb: "delete", Resource: "services", Namespace: "shop", Name: "exporter"},
		}
		if diff := cmp.Diff(want, dynamicActions(dyn)); diff != "" {
			t.Errorf("actions (-want +got):\n%s", diff)
		}
	})

	t.Run("kinds not served by the cluster are error", func(t *testing.T) {
		kube := kubefake.NewSimpleClientset()
		kube.Resources = resources()
		dyn := dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())

		testee := k8s.New(connector(kube, dyn), "")
		err := testee.ApplyOrDelete(ctx, cluster, []*unstructured.Unstructured{
			manifest("gateway.networking.k8s.io/v1alpha2", "TCPRoute", "shop", "exporter"),
		}, k8s.OperationApply)
		if err == nil {
			t.Error("expected error, but got nil")
		}
	})
}

func TestCapabilityAvailable(t *testing.T) {
	ctx := context.Background()

	kube := kubefake.NewSimpleClientset()
	kube.Resources = resources()
	testee := k8s.New(connector(kube, dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())), "")

	for name, testcase := range map[string]struct {
		when domain.Capability
		then bool
	}{
		"group is served": {when: domain.CapabilityGatewayAPI, then: true},
		"kind is served":  {when: domain.CapabilityHTTPRoute, then: true},
		"version is not served": {
			when: domain.CapabilityTCPRoute, then: false,
		},
		"group is not served": {
			when: domain.Capability{Group: "networking.istio.io"}, then: false,
		},
		"kind is not served in the version": {
			when: domain.Capability{Group: domain.GatewayAPIGroup, Version: "v1", Kind: "GRPCRoute"}, then: false,
		},
	} {
		t.Run(name, func(t *testing.T) {
			got := try.To(testee.CapabilityAvailable(ctx, cluster, testcase.when)).OrFatal(t)
			if got != testcase.then {
				t.Errorf("got %v, want %v", got, testcase.then)
			}
		})
	}
}

func TestAvailableCapacity(t *testing.T) {
	ctx := context.Background()

	node := func(name string, cpu, memory string, unschedulable bool) *kubecore.Node {
		return &kubecore.Node{
			ObjectMeta: kubeapimeta.ObjectMeta{Name: name},
			Spec:       kubecore.NodeSpec{Unschedulable: unschedulable},
			Status: kubecore.NodeStatus{
				Allocatable: kubecore.ResourceList{
					kubecore.ResourceCPU:    resource.MustParse(cpu),
					kubecore.ResourceMemory: resource.MustParse(memory),
				},
			},
		}
	}
	pod := func(name, node string, phase kubecore.PodPhase, cpu, memory string) *kubecore.Pod {
		return &kubecore.Pod{
			ObjectMeta: kubeapimeta.ObjectMeta{Namespace: "shop", Name: name},
			Spec: kubecore.PodSpec{
				NodeName: node,
				Containers: []kubecore.Container{{
					Name: "main",
					Resources: kubecore.ResourceRequirements{
						Requests: kubecore.ResourceList{
							kubecore.ResourceCPU:    resource.MustParse(cpu),
							kubecore.ResourceMemory: resource.MustParse(memory),
						},
					},
				}},
			},
			Status: kubecore.PodStatus{Phase: phase},
		}
	}

	requests := func(cpu, memory string) kubecore.ResourceRequirements {
		return kubecore.ResourceRequirements{
			Requests: kubecore.ResourceList{
				kubecore.ResourceCPU:    resource.MustParse(cpu),
				kubecore.ResourceMemory: resource.MustParse(memory),
			},
		}
	}

	type when struct {
		objects []runtime.Object
	}
	type then struct {
		cpu    string
		memory string
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			kube := kubefake.NewSimpleClientset(when.objects...)
			testee := k8s.New(connector(kube, dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())), "")

			got := try.To(testee.AvailableCapacity(ctx, cluster)).OrFatal(t)
			if want := resource.MustParse(then.cpu); got.CPU.Cmp(want) != 0 {
				t.Errorf("cpu: got %s, want %s", got.CPU.String(), want.String())
			}
			if want := resource.MustParse(then.memory); got.Memory.Cmp(want) != 0 {
				t.Errorf("memory: got %s, want %s", got.Memory.String(), want.String())
			}
		}
	}

	t.Run("requests of live pods on schedulable nodes are subtracted", theory(
		when{
			objects: []runtime.Object{
				node("node-1", "4", "8Gi", false),
				node("node-2", "2", "4Gi", false),
				node("cordoned", "16", "64Gi", true),
				pod("running", "node-1", kubecore.PodRunning, "1500m", "1Gi"),
				pod("pending", "node-2", kubecore.PodPending, "500m", "1Gi"),
				pod("finished", "node-1", kubecore.PodSucceeded, "1", "1Gi"),
				pod("on-cordoned", "cordoned", kubecore.PodRunning, "1", "1Gi"),
			},
		},
		then{cpu: "4", memory: "10Gi"},
	))

	sidecar := kubecore.ContainerRestartPolicyAlways
	t.Run("pod overhead and init containers are reserved", theory(
		when{
			objects: []runtime.Object{
				node("node-1", "4", "8Gi", false),
				&kubecore.Pod{
					ObjectMeta: kubeapimeta.ObjectMeta{Namespace: "shop", Name: "migrating"},
					Spec: kubecore.PodSpec{
						NodeName: "node-1",
						InitContainers: []kubecore.Container{
							{Name: "migrate", Resources: requests("2", "512Mi")},
						},
						Containers: []kubecore.Container{
							{Name: "main", Resources: requests("500m", "1Gi")},
						},
						Overhead: kubecore.ResourceList{
							kubecore.ResourceCPU:    resource.MustParse("250m"),
							kubecore.ResourceMemory: resource.MustParse("128Mi"),
						},
					},
					Status: kubecore.PodStatus{Phase: kubecore.PodPending},
				},
				&kubecore.Pod{
					ObjectMeta: kubeapimeta.ObjectMeta{Namespace: "shop", Name: "with-proxy"},
					Spec: kubecore.PodSpec{
						NodeName: "node-1",
						InitContainers: []kubecore.Container{
							{Name: "proxy", RestartPolicy: &sidecar, Resources: requests("250m", "256Mi")},
						},
						Containers: []kubecore.Container{
							{Name: "main", Resources: requests("500m", "512Mi")},
						},
					},
					Status: kubecore.PodStatus{Phase: kubecore.PodRunning},
				},
			},
		},
		// 4 - (max(500m, 2) + 250m) - (250m + 500m)
		// 8Gi - (max(1Gi, 512Mi) + 128Mi) - (256Mi + 512Mi)
		then{cpu: "1", memory: "6272Mi"},
	))
}

func TestGatewayReference(t *testing.T) {
	ctx := context.Background()

	gw := func(namespace, name string) runtime.Object {
		return manifest("gateway.networking.k8s.io/v1", "Gateway", namespace, name)
	}
	listKinds := map[schema.GroupVersionResource]string{k8s.GatewayGVR: "GatewayList"}

	t.Run("the first gateway is chosen", func(t *testing.T) {
		kube := kubefake.NewSimpleClientset()
		dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
			runtime.NewScheme(), listKinds,
			gw("networking", "public"), gw("gateway-system", "private"), gw("gateway-system", "external"),
		)
		testee := k8s.New(connector(kube, dyn), "")

		got := try.To(testee.GatewayReference(ctx, cluster)).OrFatal(t)
		want := domain.GatewayRef{Namespace: "gateway-system", Name: "external"}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})

	t.Run("no gateways", func(t *testing.T) {
		kube := kubefake.NewSimpleClientset()
		dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), listKinds)
		testee := k8s.New(connector(kube, dyn), "")

		got := try.To(testee.GatewayReference(ctx, cluster)).OrFatal(t)
		if !got.IsZero() {
			t.Errorf("got %+v", got)
		}
	})
}
