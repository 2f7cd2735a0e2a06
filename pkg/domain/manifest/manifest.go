// Package manifest renders desired states of components into Kubernetes manifests.
package manifest

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/opst/knitfleet/pkg/domain"
	domerr "github.com/opst/knitfleet/pkg/domain/errors"
	xe "github.com/opst/knitfleet/pkg/errors"
	kubeapps "k8s.io/api/apps/v1"
	kubeautoscaling "k8s.io/api/autoscaling/v2"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"
)

const (
	LabelName      = "app.kubernetes.io/name"
	LabelInstance  = "app.kubernetes.io/instance"
	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelComponent = "knitfleet.opst.github.io/component"

	ManagedBy = "knitfleet"
)

// Input of rendering.
type Input struct {
	State    domain.DesiredState
	Instance domain.Instance

	// Gateway where routes attach to. Routes have no parent when it is zero.
	Gateway domain.GatewayRef
}

type Renderer interface {
	// Render makes manifests of the component.
	//
	// Manifests are ordered as: ConfigMap of environment settings, Deployment or CronJob,
	// Service (services), HorizontalPodAutoscaler (services and workers), Route (routed services).
	//
	// The same input makes the same manifests, so they can be used both to apply and to delete.
	Render(Input) ([]*unstructured.Unstructured, error)
}

type renderer struct{}

func New() Renderer {
	return renderer{}
}

var reNotInName = regexp.MustCompile(`[^a-z0-9-]+`)

// ResourceName converts a component name into a name of Kubernetes resources (RFC 1123 label).
func ResourceName(componentName string) string {
	n := reNotInName.ReplaceAllString(strings.ToLower(componentName), "-")
	if len(n) > 63 {
		n = n[:63]
	}
	return strings.Trim(n, "-")
}

// ConfigMapName is the name of the ConfigMap holding environment settings for the component.
func ConfigMapName(componentName string) string {
	base := ResourceName(componentName)
	if len(base) > 63-len("-settings") {
		base = strings.TrimRight(base[:63-len("-settings")], "-")
	}
	return base + "-settings"
}

type target struct {
	name      string
	namespace string
	labels    map[string]string
	selector  map[string]string
	component domain.Component
	common    domain.CommonSettings
	image     string
}

func (c target) meta(name string) kubeapimeta.ObjectMeta {
	labels := map[string]string{}
	for k, v := range c.labels {
		labels[k] = v
	}
	return kubeapimeta.ObjectMeta{Name: name, Namespace: c.namespace, Labels: labels}
}

func (r renderer) Render(in Input) ([]*unstructured.Unstructured, error) {
	component := in.State.Component
	if component.Settings == nil {
		return nil, domerr.NewValidation("settings", "required")
	}
	if component.Settings.Kind() != component.Kind {
		return nil, xe.Wrap(fmt.Errorf(
			"settings for %s is given to %s component", component.Settings.Kind(), component.Kind,
		))
	}

	rname := ResourceName(component.Name)
	if rname == "" {
		return nil, domerr.NewValidation("name", "cannot be a name of Kubernetes resources: %q", component.Name)
	}
	namespace := ResourceName(in.Instance.Namespace())
	if namespace == "" {
		return nil, domerr.NewValidation("application", "cannot be a namespace: %q", in.Instance.Namespace())
	}

	if _, err := name.ParseReference(in.Instance.ImageReference()); err != nil {
		return nil, domerr.NewValidation("image", "%s", err)
	}

	selector := map[string]string{LabelComponent: component.Id}
	labels := map[string]string{
		LabelName:      rname,
		LabelInstance:  in.Instance.Id,
		LabelManagedBy: ManagedBy,
		LabelComponent: component.Id,
	}

	t := target{
		name:      rname,
		namespace: namespace,
		labels:    labels,
		selector:  selector,
		component: component,
		common:    *component.Settings.Common(),
		image:     in.Instance.ImageReference(),
	}

	objects := []runtime.Object{configMap(t, in.State.Environment)}

	switch s := component.Settings.(type) {
	case *domain.ServiceSettings:
		objects = append(
			objects,
			deployment(t, containerFor(t, &s.Exposure, s.Healthcheck)),
			service(t, s.Exposure),
			hpa(t),
		)
	case *domain.WorkerSettings:
		objects = append(objects, deployment(t, containerFor(t, s.Exposure, nil)), hpa(t))
	case *domain.JobSettings:
		objects = append(objects, cronJob(t, s, containerFor(t, s.Exposure, nil)))
	}

	ret := make([]*unstructured.Unstructured, 0, len(objects)+1)
	for _, o := range objects {
		u, err := toUnstructured(o)
		if err != nil {
			return nil, err
		}
		ret = append(ret, u)
	}

	if s, ok := component.Settings.(*domain.ServiceSettings); ok && s.Exposure.Routed() {
		route, err := routeFor(t, s.Exposure, in.Gateway)
		if err != nil {
			return nil, err
		}
		ret = append(ret, route)
	}

	return ret, nil
}

func toUnstructured(obj runtime.Object) (*unstructured.Unstructured, error) {
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	u := &unstructured.Unstructured{Object: content}
	// status is owned by the cluster.
	unstructured.RemoveNestedField(u.Object, "status")
	unstructured.RemoveNestedField(u.Object, "metadata", "creationTimestamp")
	return u, nil
}

func configMap(t target, env map[string]string) *kubecore.ConfigMap {
	data := make(map[string]string, len(env))
	for k, v := range env {
		data[k] = v
	}
	return &kubecore.ConfigMap{
		TypeMeta:   kubeapimeta.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: t.meta(ConfigMapName(t.component.Name)),
		Data:       data,
	}
}

func protocolOf(t domain.ExposureType) kubecore.Protocol {
	if t == domain.ExposureUDP {
		return kubecore.ProtocolUDP
	}
	return kubecore.ProtocolTCP
}

func containerFor(t target, exposure *domain.Exposure, healthcheck *domain.Healthcheck) kubecore.Container {
	common := t.common

	env := make([]kubecore.EnvVar, 0, len(common.Envs))
	for _, e := range common.Envs {
		env = append(env, kubecore.EnvVar{Name: e.Key, Value: e.Value})
	}

	requests := kubecore.ResourceList{}
	if common.CPU > 0 {
		requests[kubecore.ResourceCPU] = *resource.NewMilliQuantity(int64(math.Round(common.CPU*1000)), resource.DecimalSI)
	}
	if common.Memory > 0 {
		requests[kubecore.ResourceMemory] = *resource.NewQuantity(common.Memory*1024*1024, resource.BinarySI)
	}

	c := kubecore.Container{
		Name:  "main",
		Image: t.image,
		Env:   env,
		EnvFrom: []kubecore.EnvFromSource{
			{ConfigMapRef: &kubecore.ConfigMapEnvSource{
				LocalObjectReference: kubecore.LocalObjectReference{Name: ConfigMapName(t.component.Name)},
			}},
		},
		Resources: kubecore.ResourceRequirements{Requests: requests},
	}
	if len(common.Command) != 0 {
		c.Command = append([]string{}, common.Command...)
	}
	if exposure != nil {
		c.Ports = append(c.Ports, kubecore.ContainerPort{
			Name:          "main",
			ContainerPort: exposure.Port,
			Protocol:      protocolOf(exposure.Type),
		})
	}
	if cm := common.CustomMetrics; cm != nil && cm.Enabled && (exposure == nil || cm.Port != exposure.Port) {
		c.Ports = append(c.Ports, kubecore.ContainerPort{
			Name: "metrics", ContainerPort: cm.Port, Protocol: kubecore.ProtocolTCP,
		})
	}

	if hc := healthcheck; hc != nil {
		handler := kubecore.ProbeHandler{}
		switch hc.Protocol {
		case domain.HealthcheckTCP:
			handler.TCPSocket = &kubecore.TCPSocketAction{Port: intstr.FromInt32(hc.Port)}
		default:
			handler.HTTPGet = &kubecore.HTTPGetAction{Path: hc.Path, Port: intstr.FromInt32(hc.Port)}
		}
		probe := &kubecore.Probe{
			ProbeHandler:        handler,
			TimeoutSeconds:      hc.Timeout,
			PeriodSeconds:       hc.Interval,
			InitialDelaySeconds: hc.InitialInterval,
			FailureThreshold:    hc.FailureThreshold,
		}
		c.ReadinessProbe = probe
		c.LivenessProbe = probe.DeepCopy()
	}
	return c
}

func podTemplate(t target, container kubecore.Container, restart kubecore.RestartPolicy) kubecore.PodTemplateSpec {
	meta := t.meta("")
	meta.Name = ""
	meta.Namespace = ""
	if cm := t.common.CustomMetrics; cm != nil && cm.Enabled {
		meta.Annotations = map[string]string{
			"prometheus.io/scrape": "true",
			"prometheus.io/path":   cm.Path,
			"prometheus.io/port":   strconv.Itoa(int(cm.Port)),
		}
	}
	return kubecore.PodTemplateSpec{
		ObjectMeta: meta,
		Spec: kubecore.PodSpec{
			Containers:    []kubecore.Container{container},
			RestartPolicy: restart,
		},
	}
}

func deployment(t target, container kubecore.Container) *kubeapps.Deployment {
	return &kubeapps.Deployment{
		TypeMeta:   kubeapimeta.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: t.meta(t.name),
		Spec: kubeapps.DeploymentSpec{
			Replicas: ptr.To(t.common.Autoscaling.Min),
			Selector: &kubeapimeta.LabelSelector{MatchLabels: t.selector},
			Template: podTemplate(t, container, kubecore.RestartPolicyAlways),
		},
	}
}

func cronJob(t target, s *domain.JobSettings, container kubecore.Container) *kubebatch.CronJob {
	cj := &kubebatch.CronJob{
		TypeMeta:   kubeapimeta.TypeMeta{APIVersion: "batch/v1", Kind: "CronJob"},
		ObjectMeta: t.meta(t.name),
		Spec: kubebatch.CronJobSpec{
			Schedule: strings.TrimSpace(s.Schedule),
			JobTemplate: kubebatch.JobTemplateSpec{
				Spec: kubebatch.JobSpec{
					Template: podTemplate(t, container, kubecore.RestartPolicyOnFailure),
				},
			},
		},
	}
	if s.ConcurrencyPolicy != "" {
		cj.Spec.ConcurrencyPolicy = kubebatch.ConcurrencyPolicy(s.ConcurrencyPolicy)
	}
	return cj
}

func service(t target, exposure domain.Exposure) *kubecore.Service {
	return &kubecore.Service{
		TypeMeta:   kubeapimeta.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: t.meta(t.name),
		Spec: kubecore.ServiceSpec{
			Type:     kubecore.ServiceTypeClusterIP,
			Selector: t.selector,
			Ports: []kubecore.ServicePort{
				{
					Name:       "main",
					Port:       exposure.Port,
					TargetPort: intstr.FromInt32(exposure.Port),
					Protocol:   protocolOf(exposure.Type),
				},
			},
		},
	}
}

func hpa(t target) *kubeautoscaling.HorizontalPodAutoscaler {
	utilization := func(r kubecore.ResourceName, threshold int32) kubeautoscaling.MetricSpec {
		return kubeautoscaling.MetricSpec{
			Type: kubeautoscaling.ResourceMetricSourceType,
			Resource: &kubeautoscaling.ResourceMetricSource{
				Name: r,
				Target: kubeautoscaling.MetricTarget{
					Type:               kubeautoscaling.UtilizationMetricType,
					AverageUtilization: ptr.To(threshold),
				},
			},
		}
	}
	return &kubeautoscaling.HorizontalPodAutoscaler{
		TypeMeta:   kubeapimeta.TypeMeta{APIVersion: "autoscaling/v2", Kind: "HorizontalPodAutoscaler"},
		ObjectMeta: t.meta(t.name),
		Spec: kubeautoscaling.HorizontalPodAutoscalerSpec{
			ScaleTargetRef: kubeautoscaling.CrossVersionObjectReference{
				APIVersion: "apps/v1", Kind: "Deployment", Name: t.name,
			},
			MinReplicas: ptr.To(t.common.Autoscaling.Min),
			MaxReplicas: t.common.Autoscaling.Max,
			Metrics: []kubeautoscaling.MetricSpec{
				utilization(kubecore.ResourceCPU, t.common.CPUScalingThreshold),
				utilization(kubecore.ResourceMemory, t.common.MemoryScalingThreshold),
			},
		},
	}
}

func routeFor(t target, exposure domain.Exposure, gateway domain.GatewayRef) (*unstructured.Unstructured, error) {
	capability, ok := domain.RouteCapability(exposure.Type)
	if !ok {
		return nil, domerr.NewValidation("settings.exposure.type", "no route for %q", exposure.Type)
	}

	rule := map[string]any{
		"backendRefs": []any{
			map[string]any{"name": t.name, "port": int64(exposure.Port)},
		},
	}
	spec := map[string]any{"rules": []any{rule}}

	if !gateway.IsZero() {
		spec["parentRefs"] = []any{
			map[string]any{"name": gateway.Name, "namespace": gateway.Namespace},
		}
	}

	if exposure.Type == domain.ExposureHTTP && t.component.URL != nil && *t.component.URL != "" {
		u, err := url.Parse(*t.component.URL)
		if err != nil {
			return nil, domerr.NewValidation("url", "%s", err)
		}
		if host := u.Hostname(); host != "" {
			spec["hostnames"] = []any{host}
		}
		if p := strings.TrimRight(u.Path, "/"); p != "" {
			rule["matches"] = []any{
				map[string]any{"path": map[string]any{"type": "PathPrefix", "value": p}},
			}
		}
	}

	labels := map[string]any{}
	for k, v := range t.labels {
		labels[k] = v
	}

	return &unstructured.Unstructured{
		Object: map[string]any{
			"apiVersion": capability.Group + "/" + capability.Version,
			"kind":       capability.Kind,
			"metadata": map[string]any{
				"name":      t.name,
				"namespace": t.namespace,
				"labels":    labels,
			},
			"spec": spec,
		},
	}, nil
}
