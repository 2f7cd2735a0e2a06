package k8s

import (
	"context"

	"github.com/opst/knitfleet/pkg/domain"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

type Operation string

const (
	// OperationApply creates or updates resources with server-side apply.
	OperationApply Operation = "apply"

	// OperationDelete deletes resources. Missing resources are ignored.
	OperationDelete Operation = "delete"
)

// Gateway operates registered Kubernetes clusters.
type Gateway interface {
	// ApplyOrDelete applies or deletes manifests in the cluster, in the given order.
	//
	// It stops at the first failure. Manifests processed before the failure are not reverted.
	//
	// On apply, namespaces of the manifests are created when missing.
	ApplyOrDelete(
		ctx context.Context, cluster domain.Cluster,
		manifests []*unstructured.Unstructured, op Operation,
	) error

	// CapabilityAvailable reports whether the cluster serves the API.
	CapabilityAvailable(ctx context.Context, cluster domain.Cluster, capability domain.Capability) (bool, error)

	// AvailableCapacity returns allocatable resources of schedulable nodes
	// minus requests of running pods on them.
	//
	// # Returns
	//
	// - error: the cluster is unreachable or it refused the request.
	AvailableCapacity(ctx context.Context, cluster domain.Cluster) (domain.Capacity, error)

	// GatewayReference returns the Gateway (of Gateway API) which routes should attach to.
	//
	// The first Gateway ordered by namespace and name is chosen.
	// Zero value is returned if there are no Gateways or the cluster does not serve Gateway API.
	GatewayReference(ctx context.Context, cluster domain.Cluster) (domain.GatewayRef, error)
}
