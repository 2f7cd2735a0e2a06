package mock

import (
	"context"
	"sync"
	"testing"

	"github.com/opst/knitfleet/pkg/domain"
	k8s "github.com/opst/knitfleet/pkg/domain/cluster/k8s"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

type ApplyOrDeleteArgs struct {
	Cluster   domain.Cluster
	Manifests []*unstructured.Unstructured
	Operation k8s.Operation
}

type CapabilityAvailableArgs struct {
	Cluster    domain.Cluster
	Capability domain.Capability
}

// Gateway is a mock of k8s.Gateway.
//
// Methods may be called concurrently; Calls are guarded by a mutex.
type Gateway struct {
	t    *testing.T
	mu   sync.Mutex
	Impl struct {
		ApplyOrDelete       func(ctx context.Context, cluster domain.Cluster, manifests []*unstructured.Unstructured, op k8s.Operation) error
		CapabilityAvailable func(ctx context.Context, cluster domain.Cluster, capability domain.Capability) (bool, error)
		AvailableCapacity   func(ctx context.Context, cluster domain.Cluster) (domain.Capacity, error)
		GatewayReference    func(ctx context.Context, cluster domain.Cluster) (domain.GatewayRef, error)
	}
	Calls struct {
		ApplyOrDelete       []ApplyOrDeleteArgs
		CapabilityAvailable []CapabilityAvailableArgs
		AvailableCapacity   []domain.Cluster
		GatewayReference    []domain.Cluster
	}
}

var _ k8s.Gateway = &Gateway{}

func New(t *testing.T) *Gateway {
	return &Gateway{t: t}
}

func (g *Gateway) ApplyOrDelete(ctx context.Context, cluster domain.Cluster, manifests []*unstructured.Unstructured, op k8s.Operation) error {
	g.mu.Lock()
	g.Calls.ApplyOrDelete = append(g.Calls.ApplyOrDelete, ApplyOrDeleteArgs{
		Cluster: cluster, Manifests: manifests, Operation: op,
	})
	g.mu.Unlock()
	if g.Impl.ApplyOrDelete == nil {
		g.t.Fatal("ApplyOrDelete not implemented")
	}
	return g.Impl.ApplyOrDelete(ctx, cluster, manifests, op)
}

func (g *Gateway) CapabilityAvailable(ctx context.Context, cluster domain.Cluster, capability domain.Capability) (bool, error) {
	g.mu.Lock()
	g.Calls.CapabilityAvailable = append(g.Calls.CapabilityAvailable, CapabilityAvailableArgs{
		Cluster: cluster, Capability: capability,
	})
	g.mu.Unlock()
	if g.Impl.CapabilityAvailable == nil {
		g.t.Fatal("CapabilityAvailable not implemented")
	}
	return g.Impl.CapabilityAvailable(ctx, cluster, capability)
}

func (g *Gateway) AvailableCapacity(ctx context.Context, cluster domain.Cluster) (domain.Capacity, error) {
	g.mu.Lock()
	g.Calls.AvailableCapacity = append(g.Calls.AvailableCapacity, cluster)
	g.mu.Unlock()
	if g.Impl.AvailableCapacity == nil {
		g.t.Fatal("AvailableCapacity not implemented")
	}
	return g.Impl.AvailableCapacity(ctx, cluster)
}

func (g *Gateway) GatewayReference(ctx context.Context, cluster domain.Cluster) (domain.GatewayRef, error) {
	g.mu.Lock()
	g.Calls.GatewayReference = append(g.Calls.GatewayReference, cluster)
	g.mu.Unlock()
	if g.Impl.GatewayReference == nil {
		g.t.Fatal("GatewayReference not implemented")
	}
	return g.Impl.GatewayReference(ctx, cluster)
}

// OperationsOf returns operations passed to ApplyOrDelete, in order.
func (g *Gateway) OperationsOf() []k8s.Operation {
	g.mu.Lock()
	defer g.mu.Unlock()
	ops := make([]k8s.Operation, 0, len(g.Calls.ApplyOrDelete))
	for _, c := range g.Calls.ApplyOrDelete {
		ops = append(ops, c.Operation)
	}
	return ops
}
