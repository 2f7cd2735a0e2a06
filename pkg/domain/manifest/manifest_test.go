package manifest_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opst/knitfleet/pkg/desiredstate"
	"github.com/opst/knitfleet/pkg/domain"
	domerr "github.com/opst/knitfleet/pkg/domain/errors"
	"github.com/opst/knitfleet/pkg/domain/manifest"
	"github.com/opst/knitfleet/pkg/utils/try"
	kubeapps "k8s.io/api/apps/v1"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"
)

var instance = domain.Instance{
	Id:            "ins-1",
	Application:   domain.Application{Id: "app-1", Name: "shop"},
	EnvironmentId: "env-1",
	Image:         "registry.example.com/shop/api",
	Version:       "1.2.3",
	Enabled:       true,
}

var envSettings = []domain.Setting{
	{Id: "set-1", EnvironmentId: "env-1", Key: "DATABASE_URL", Value: "postgres://db"},
}

func render(t *testing.T, component domain.Component, gateway domain.GatewayRef) []*unstructured.Unstructured {
	t.Helper()
	state := try.To(desiredstate.Build(component, envSettings)).OrFatal(t)
	return try.To(manifest.New().Render(manifest.Input{
		State: state, Instance: instance, Gateway: gateway,
	})).OrFatal(t)
}

func kinds(manifests []*unstructured.Unstructured) []string {
	ret := []string{}
	for _, m := range manifests {
		ret = append(ret, m.GetKind())
	}
	return ret
}

func fromUnstructured[T any](t *testing.T, u *unstructured.Unstructured) *T {
	t.Helper()
	obj := new(T)
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, obj); err != nil {
		t.Fatal(err)
	}
	return obj
}

func TestRender_Service(t *testing.T) {
	component := domain.Component{
		Id: "cmp-1", InstanceId: "ins-1", Name: "Web_API", Kind: domain.KindService, Enabled: true,
		URL: ptr.To("https://shop.example.com/api/"),
		Settings: &domain.ServiceSettings{
			CommonSettings: domain.CommonSettings{
				CPU: 0.25, Memory: 512,
				Envs:    []domain.EnvVar{{Key: "MODE", Value: "web"}},
				Command: []string{"python", "-m", "http.server"},
			},
			Exposure: domain.Exposure{
				Type: domain.ExposureHTTP, Port: 8080, Visibility: domain.VisibilityPublic,
			},
			Healthcheck: &domain.Healthcheck{Path: "/health"},
		},
	}

	got := render(t, component, domain.GatewayRef{Namespace: "gateway-system", Name: "external"})

	if diff := cmp.Diff(
		[]string{"ConfigMap", "Deployment", "Service", "HorizontalPodAutoscaler", "HTTPRoute"},
		kinds(got),
	); diff != "" {
		t.Fatalf("kinds (-want +got):\n%s", diff)
	}
	for _, m := range got {
		if m.GetNamespace() != "shop" {
			t.Errorf("%s: namespace = %s", m.GetKind(), m.GetNamespace())
		}
	}

	t.Run("environment settings are in the ConfigMap", func(t *testing.T) {
		cm := fromUnstructured[kubecore.ConfigMap](t, got[0])
		if cm.Name != "web-api-settings" {
			t.Errorf("name: %s", cm.Name)
		}
		if diff := cmp.Diff(map[string]string{"DATABASE_URL": "postgres://db"}, cm.Data); diff != "" {
			t.Errorf("data (-want +got):\n%s", diff)
		}
	})

	t.Run("deployment runs the image of the instance", func(t *testing.T) {
		depl := fromUnstructured[kubeapps.Deployment](t, got[1])
		if depl.Name != "web-api" {
			t.Errorf("name: %s", depl.Name)
		}
		if *depl.Spec.Replicas != domain.DefaultAutoscaling.Min {
			t.Errorf("replicas: %d", *depl.Spec.Replicas)
		}
		c := depl.Spec.Template.Spec.Containers[0]
		if c.Image != "registry.example.com/shop/api:1.2.3" {
			t.Errorf("image: %s", c.Image)
		}
		if diff := cmp.Diff([]string{"python", "-m", "http.server"}, c.Command); diff != "" {
			t.Errorf("command (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]kubecore.EnvVar{{Name: "MODE", Value: "web"}}, c.Env); diff != "" {
			t.Errorf("env (-want +got):\n%s", diff)
		}
		if len(c.EnvFrom) != 1 || c.EnvFrom[0].ConfigMapRef.Name != "web-api-settings" {
			t.Errorf("envFrom: %+v", c.EnvFrom)
		}
		if q := c.Resources.Requests[kubecore.ResourceCPU]; q.Cmp(resource.MustParse("250m")) != 0 {
			t.Errorf("cpu: %s", q.String())
		}
		if q := c.Resources.Requests[kubecore.ResourceMemory]; q.Cmp(resource.MustParse("512Mi")) != 0 {
			t.Errorf("memory: %s", q.String())
		}
		if c.ReadinessProbe == nil || c.ReadinessProbe.HTTPGet == nil || c.ReadinessProbe.HTTPGet.Path != "/health" {
			t.Errorf("readiness probe: %+v", c.ReadinessProbe)
		}
		if c.LivenessProbe == nil || c.LivenessProbe.FailureThreshold != 2 {
			t.Errorf("liveness probe: %+v", c.LivenessProbe)
		}
		if len(c.Ports) != 1 || c.Ports[0].ContainerPort != 8080 {
			t.Errorf("ports: %+v", c.Ports)
		}
	})

	t.Run("route attaches to the gateway with the host and path of URL", func(t *testing.T) {
		route := got[4]
		if route.GetAPIVersion() != "gateway.networking.k8s.io/v1" {
			t.Errorf("apiVersion: %s", route.GetAPIVersion())
		}
		hostnames, _, _ := unstructured.NestedStringSlice(route.Object, "spec", "hostnames")
		if diff := cmp.Diff([]string{"shop.example.com"}, hostnames); diff != "" {
			t.Errorf("hostnames (-want +got):\n%s", diff)
		}
		parents, _, _ := unstructured.NestedSlice(route.Object, "spec", "parentRefs")
		want := []any{map[string]any{"name": "external", "namespace": "gateway-system"}}
		if diff := cmp.Diff(want, parents); diff != "" {
			t.Errorf("parentRefs (-want +got):\n%s", diff)
		}
		rules, _, _ := unstructured.NestedSlice(route.Object, "spec", "rules")
		if len(rules) != 1 {
			t.Fatalf("rules: %+v", rules)
		}
		prefix, _, _ := unstructured.NestedString(
			rules[0].(map[string]any)["matches"].([]any)[0].(map[string]any), "path", "value",
		)
		if prefix != "/api" {
			t.Errorf("path prefix: %s", prefix)
		}
	})
}

func TestRender_ServiceInCluster(t *testing.T) {
	component := domain.Component{
		Id: "cmp-1", InstanceId: "ins-1", Name: "cache", Kind: domain.KindService, Enabled: true,
		Settings: &domain.ServiceSettings{
			Exposure: domain.Exposure{Type: domain.ExposureUDP, Port: 5353, Visibility: domain.VisibilityCluster},
		},
	}

	got := render(t, component, domain.GatewayRef{})
	if diff := cmp.Diff(
		[]string{"ConfigMap", "Deployment", "Service", "HorizontalPodAutoscaler"}, kinds(got),
	); diff != "" {
		t.Fatalf("kinds (-want +got):\n%s", diff)
	}
	svc := fromUnstructured[kubecore.Service](t, got[2])
	if svc.Spec.Ports[0].Protocol != kubecore.ProtocolUDP || svc.Spec.Ports[0].Port != 5353 {
		t.Errorf("ports: %+v", svc.Spec.Ports)
	}
}

func TestRender_TCPRouteWithoutGateway(t *testing.T) {
	component := domain.Component{
		Id: "cmp-1", InstanceId: "ins-1", Name: "mqtt", Kind: domain.KindService, Enabled: true,
		Settings: &domain.ServiceSettings{
			Exposure: domain.Exposure{Type: domain.ExposureTCP, Port: 1883, Visibility: domain.VisibilityPrivate},
		},
	}

	got := render(t, component, domain.GatewayRef{})
	route := got[len(got)-1]
	if route.GetKind() != "TCPRoute" || route.GetAPIVersion() != "gateway.networking.k8s.io/v1alpha2" {
		t.Errorf("route: %s %s", route.GetAPIVersion(), route.GetKind())
	}
	if _, found, _ := unstructured.NestedSlice(route.Object, "spec", "parentRefs"); found {
		t.Error("parentRefs should be omitted without gateway")
	}
}

func TestRender_Worker(t *testing.T) {
	component := domain.Component{
		Id: "cmp-2", InstanceId: "ins-1", Name: "exporter", Kind: domain.KindWorker, Enabled: true,
		Settings: &domain.WorkerSettings{
			CommonSettings: domain.CommonSettings{
				CustomMetrics: &domain.CustomMetrics{Enabled: true, Port: 9100},
			},
		},
	}

	got := render(t, component, domain.GatewayRef{})
	if diff := cmp.Diff([]string{"ConfigMap", "Deployment", "HorizontalPodAutoscaler"}, kinds(got)); diff != "" {
		t.Fatalf("kinds (-want +got):\n%s", diff)
	}

	depl := fromUnstructured[kubeapps.Deployment](t, got[1])
	want := map[string]string{
		"prometheus.io/scrape": "true",
		"prometheus.io/path":   "/metrics",
		"prometheus.io/port":   "9100",
	}
	if diff := cmp.Diff(want, depl.Spec.Template.Annotations); diff != "" {
		t.Errorf("annotations (-want +got):\n%s", diff)
	}
	if sel := depl.Spec.Selector.MatchLabels[manifest.LabelComponent]; sel != "cmp-2" {
		t.Errorf("selector: %+v", depl.Spec.Selector)
	}
}

func TestRender_Job(t *testing.T) {
	component := domain.Component{
		Id: "cmp-3", InstanceId: "ins-1", Name: "nightly", Kind: domain.KindJob, Enabled: true,
		Settings: &domain.JobSettings{
			Schedule:          " 0 3 * * * ",
			ConcurrencyPolicy: domain.ConcurrencyForbid,
		},
	}

	got := render(t, component, domain.GatewayRef{})
	if diff := cmp.Diff([]string{"ConfigMap", "CronJob"}, kinds(got)); diff != "" {
		t.Fatalf("kinds (-want +got):\n%s", diff)
	}
	cj := fromUnstructured[kubebatch.CronJob](t, got[1])
	if cj.Spec.Schedule != "0 3 * * *" {
		t.Errorf("schedule: %q", cj.Spec.Schedule)
	}
	if cj.Spec.ConcurrencyPolicy != kubebatch.ForbidConcurrent {
		t.Errorf("concurrency policy: %s", cj.Spec.ConcurrencyPolicy)
	}
	if p := cj.Spec.JobTemplate.Spec.Template.Spec.RestartPolicy; p != kubecore.RestartPolicyOnFailure {
		t.Errorf("restart policy: %s", p)
	}
}

func TestRender_Invalid(t *testing.T) {
	worker := domain.Component{
		Id: "cmp-2", InstanceId: "ins-1", Name: "exporter", Kind: domain.KindWorker,
		Settings: &domain.WorkerSettings{},
	}

	for name, testcase := range map[string]struct {
		component domain.Component
		instance  domain.Instance
	}{
		"broken image": {
			component: worker,
			instance: func() domain.Instance {
				i := instance
				i.Image = "Registry.Example.com/UPPER CASE"
				return i
			}(),
		},
		"name without usable characters": {
			component: func() domain.Component {
				c := worker
				c.Name = "___"
				return c
			}(),
			instance: instance,
		},
	} {
		t.Run(name, func(t *testing.T) {
			state := try.To(desiredstate.Build(testcase.component, nil)).OrFatal(t)
			_, err := manifest.New().Render(manifest.Input{State: state, Instance: testcase.instance})
			if !errors.Is(err, domerr.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, but got %v", err)
			}
		})
	}
}

func TestResourceName(t *testing.T) {
	for when, then := range map[string]string{
		"exporter":   "exporter",
		"Web_API":    "web-api",
		"-edge-":     "edge",
		"a.b.c":      "a-b-c",
		"日本語-worker": "worker",
	} {
		if got := manifest.ResourceName(when); got != then {
			t.Errorf("ResourceName(%q) = %q, want %q", when, got, then)
		}
	}
}
