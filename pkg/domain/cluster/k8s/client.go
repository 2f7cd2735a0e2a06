package k8s

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/opst/knitfleet/pkg/domain"
	xe "github.com/opst/knitfleet/pkg/errors"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/api/resource"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/restmapper"
)

// GatewayGVR is the resource of Gateways in Gateway API.
var GatewayGVR = schema.GroupVersionResource{
	Group:    domain.GatewayAPIGroup,
	Version:  "v1",
	Resource: "gateways",
}

// DefaultFieldManager is the field manager name of server-side apply.
const DefaultFieldManager = "knitfleet"

type gateway struct {
	connector    Connector
	fieldManager string
}

var _ Gateway = &gateway{}

// New returns a Gateway.
//
// # Args
//
// - connector: makes clients for each cluster.
//
// - fieldManager: field manager name used in server-side apply. If empty, DefaultFieldManager is used.
func New(connector Connector, fieldManager string) Gateway {
	if fieldManager == "" {
		fieldManager = DefaultFieldManager
	}
	return &gateway{connector: connector, fieldManager: fieldManager}
}

func (g *gateway) ApplyOrDelete(
	ctx context.Context, cluster domain.Cluster,
	manifests []*unstructured.Unstructured, op Operation,
) error {
	switch op {
	case OperationApply, OperationDelete:
	default:
		return xe.Wrap(fmt.Errorf("unknown operation: %q", op))
	}
	if len(manifests) == 0 {
		return nil
	}

	clients, err := g.connector.Connect(cluster)
	if err != nil {
		return err
	}

	groupResources, err := restmapper.GetAPIGroupResources(clients.Kube.Discovery())
	if err != nil {
		return xe.WrapWithNote(fmt.Sprintf("cluster %s", cluster.Name), err)
	}
	mapper := restmapper.NewDiscoveryRESTMapper(groupResources)

	ensured := map[string]struct{}{}
	errs := []error{}
	for _, m := range manifests {
		err := g.applyOrDeleteOne(ctx, clients, mapper, ensured, m, op)
		if err == nil {
			continue
		}
		if op == OperationApply {
			return err
		}
		// deleting goes on, not to leave the rest.
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (g *gateway) applyOrDeleteOne(
	ctx context.Context, clients Clients, mapper meta.RESTMapper,
	ensured map[string]struct{}, m *unstructured.Unstructured, op Operation,
) error {
	gvk := m.GroupVersionKind()
	mapping, err := mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return xe.Wrap(fmt.Errorf("%s %s: %w", gvk.Kind, m.GetName(), err))
	}

	var ri dynamic.ResourceInterface = clients.Dynamic.Resource(mapping.Resource)
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		ns := m.GetNamespace()
		if ns == "" {
			ns = kubeapimeta.NamespaceDefault
		}
		if op == OperationApply {
			if _, ok := ensured[ns]; !ok {
				if err := ensureNamespace(ctx, clients, ns); err != nil {
					return err
				}
				ensured[ns] = struct{}{}
			}
		}
		ri = clients.Dynamic.Resource(mapping.Resource).Namespace(ns)
	}

	switch op {
	case OperationApply:
		if _, err := ri.Apply(ctx, m.GetName(), m, kubeapimeta.ApplyOptions{
			FieldManager: g.fieldManager,
			Force:        true,
		}); err != nil {
			return xe.Wrap(fmt.Errorf("applying %s %s: %w", gvk.Kind, m.GetName(), err))
		}
	case OperationDelete:
		background := kubeapimeta.DeletePropagationBackground
		if err := ri.Delete(ctx, m.GetName(), kubeapimeta.DeleteOptions{
			PropagationPolicy: &background,
		}); err != nil && !kubeerr.IsNotFound(err) {
			return xe.Wrap(fmt.Errorf("deleting %s %s: %w", gvk.Kind, m.GetName(), err))
		}
	}
	return nil
}

func ensureNamespace(ctx context.Context, clients Clients, name string) error {
	namespaces := clients.Kube.CoreV1().Namespaces()
	if _, err := namespaces.Get(ctx, name, kubeapimeta.GetOptions{}); err == nil {
		return nil
	} else if !kubeerr.IsNotFound(err) {
		return xe.Wrap(err)
	}

	_, err := namespaces.Create(ctx, &kubecore.Namespace{
		ObjectMeta: kubeapimeta.ObjectMeta{Name: name},
	}, kubeapimeta.CreateOptions{})
	if err != nil && !kubeerr.IsAlreadyExists(err) {
		return xe.Wrap(err)
	}
	return nil
}

func (g *gateway) CapabilityAvailable(ctx context.Context, cluster domain.Cluster, capability domain.Capability) (bool, error) {
	clients, err := g.connector.Connect(cluster)
	if err != nil {
		return false, err
	}
	disco := clients.Kube.Discovery()

	if capability.Kind == "" {
		groups, err := disco.ServerGroups()
		if err != nil {
			return false, xe.Wrap(err)
		}
		for _, grp := range groups.Groups {
			if grp.Name == capability.Group {
				return true, nil
			}
		}
		return false, nil
	}

	gv := schema.GroupVersion{Group: capability.Group, Version: capability.Version}
	resources, err := disco.ServerResourcesForGroupVersion(gv.String())
	if err != nil {
		if kubeerr.IsNotFound(err) {
			return false, nil
		}
		return false, xe.Wrap(err)
	}
	for _, r := range resources.APIResources {
		if r.Kind == capability.Kind {
			return true, nil
		}
	}
	return false, nil
}

func (g *gateway) AvailableCapacity(ctx context.Context, cluster domain.Cluster) (domain.Capacity, error) {
	clients, err := g.connector.Connect(cluster)
	if err != nil {
		return domain.Capacity{}, err
	}

	nodes, err := clients.Kube.CoreV1().Nodes().List(ctx, kubeapimeta.ListOptions{})
	if err != nil {
		return domain.Capacity{}, xe.Wrap(err)
	}

	cpu := resource.Quantity{}
	memory := resource.Quantity{}
	schedulable := map[string]struct{}{}
	for _, n := range nodes.Items {
		if n.Spec.Unschedulable {
			continue
		}
		schedulable[n.Name] = struct{}{}
		if q, ok := n.Status.Allocatable[kubecore.ResourceCPU]; ok {
			cpu.Add(q)
		}
		if q, ok := n.Status.Allocatable[kubecore.ResourceMemory]; ok {
			memory.Add(q)
		}
	}

	pods, err := clients.Kube.CoreV1().Pods(kubeapimeta.NamespaceAll).List(ctx, kubeapimeta.ListOptions{})
	if err != nil {
		return domain.Capacity{}, xe.Wrap(err)
	}
	for _, p := range pods.Items {
		if _, ok := schedulable[p.Spec.NodeName]; !ok {
			continue
		}
		if p.Status.Phase == kubecore.PodSucceeded || p.Status.Phase == kubecore.PodFailed {
			continue
		}
		requests := podRequests(p)
		cpu.Sub(requests.cpu)
		memory.Sub(requests.memory)
	}

	if cpu.Sign() < 0 {
		cpu = resource.Quantity{}
	}
	if memory.Sign() < 0 {
		memory = resource.Quantity{}
	}
	return domain.Capacity{CPU: cpu, Memory: memory}, nil
}

type requests struct {
	cpu    resource.Quantity
	memory resource.Quantity
}

func (r *requests) add(list kubecore.ResourceList) {
	if q, ok := list[kubecore.ResourceCPU]; ok {
		r.cpu.Add(q)
	}
	if q, ok := list[kubecore.ResourceMemory]; ok {
		r.memory.Add(q)
	}
}

func (r *requests) atLeast(o requests) {
	if r.cpu.Cmp(o.cpu) < 0 {
		r.cpu = o.cpu.DeepCopy()
	}
	if r.memory.Cmp(o.memory) < 0 {
		r.memory = o.memory.DeepCopy()
	}
}

// podRequests is what the scheduler reserves for the pod on its node.
//
// Regular containers and sidecars (restartable init containers) run together.
// Other init containers run one by one, each alongside the sidecars started before it.
// Pod overhead is added on top.
func podRequests(p kubecore.Pod) requests {
	total := requests{}
	sidecars := requests{}
	initPeak := requests{}
	for _, c := range p.Spec.InitContainers {
		if c.RestartPolicy != nil && *c.RestartPolicy == kubecore.ContainerRestartPolicyAlways {
			sidecars.add(c.Resources.Requests)
			initPeak.atLeast(sidecars)
			continue
		}
		running := requests{cpu: sidecars.cpu.DeepCopy(), memory: sidecars.memory.DeepCopy()}
		running.add(c.Resources.Requests)
		initPeak.atLeast(running)
	}

	for _, c := range p.Spec.Containers {
		total.add(c.Resources.Requests)
	}
	total.cpu.Add(sidecars.cpu)
	total.memory.Add(sidecars.memory)
	total.atLeast(initPeak)

	total.add(p.Spec.Overhead)
	return total
}

func (g *gateway) GatewayReference(ctx context.Context, cluster domain.Cluster) (domain.GatewayRef, error) {
	clients, err := g.connector.Connect(cluster)
	if err != nil {
		return domain.GatewayRef{}, err
	}

	list, err := clients.Dynamic.Resource(GatewayGVR).Namespace(kubeapimeta.NamespaceAll).List(ctx, kubeapimeta.ListOptions{})
	if err != nil {
		if kubeerr.IsNotFound(err) || meta.IsNoMatchError(err) {
			return domain.GatewayRef{}, nil
		}
		return domain.GatewayRef{}, xe.Wrap(err)
	}
	if len(list.Items) == 0 {
		return domain.GatewayRef{}, nil
	}

	refs := make([]domain.GatewayRef, 0, len(list.Items))
	for _, item := range list.Items {
		refs = append(refs, domain.GatewayRef{Namespace: item.GetNamespace(), Name: item.GetName()})
	}
	slices.SortFunc(refs, func(a, b domain.GatewayRef) int {
		if n := cmp.Compare(a.Namespace, b.Namespace); n != 0 {
			return n
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return refs[0], nil
}
