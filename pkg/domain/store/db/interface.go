package db

import (
	"context"

	"github.com/opst/knitfleet/pkg/domain"
)

// Reader reads entities from the store.
type Reader interface {
	// GetInstance returns the instance with its application.
	//
	// # Returns
	//
	// - error: ErrMissing when the instance is not found.
	GetInstance(ctx context.Context, instanceId string) (domain.Instance, error)

	// GetComponent returns the component.
	//
	// # Returns
	//
	// - error: ErrMissing when the component is not found.
	GetComponent(ctx context.Context, componentId string) (domain.Component, error)

	// FindComponents returns components of the kind, ordered by creation.
	FindComponents(ctx context.Context, kind domain.Kind) ([]domain.Component, error)

	// FindComponentsByInstance returns all components of the instance, ordered by name.
	FindComponentsByInstance(ctx context.Context, instanceId string) ([]domain.Component, error)

	// GetCluster returns the cluster.
	//
	// # Returns
	//
	// - error: ErrMissing when the cluster is not found.
	GetCluster(ctx context.Context, clusterId string) (domain.Cluster, error)

	// FindClustersByEnvironment returns clusters in the environment, ordered by name.
	FindClustersByEnvironment(ctx context.Context, environmentId string) ([]domain.Cluster, error)

	// FindSettingsByEnvironment returns environment-wide settings, ordered by key.
	FindSettingsByEnvironment(ctx context.Context, environmentId string) ([]domain.Setting, error)

	// FindPlacementByComponent returns the placement of the component.
	//
	// # Returns
	//
	// - domain.Placement: the placement. Valid only when found is true.
	//
	// - bool: whether the component has a placement.
	//
	// - error
	FindPlacementByComponent(ctx context.Context, componentId string) (placement domain.Placement, found bool, error error)
}

// Tx is a transaction of the store.
//
// Changes made through Tx are visible to others only after Commit.
// Rollback after Commit does nothing, so it is safe to defer Rollback.
type Tx interface {
	Reader

	// LockComponent reads the component and locks it until the end of the transaction.
	//
	// # Returns
	//
	// - error: ErrMissing when the component is not found.
	LockComponent(ctx context.Context, componentId string) (domain.Component, error)

	// CreateComponent inserts a new component.
	//
	// # Returns
	//
	// - domain.Component: inserted component with timestamps.
	//
	// - error: ErrConflict when the instance already has a component with the name,
	// ErrMissing when the instance is not found.
	CreateComponent(ctx context.Context, component domain.Component) (domain.Component, error)

	// UpdateComponent overwrites name, settings, enabled and url of the component.
	//
	// # Returns
	//
	// - error: ErrMissing when the component is not found.
	UpdateComponent(ctx context.Context, component domain.Component) (domain.Component, error)

	// DeleteComponent deletes the component.
	//
	// # Returns
	//
	// - error: ErrMissing when the component is not found.
	DeleteComponent(ctx context.Context, componentId string) error

	// CreatePlacement inserts a new placement.
	//
	// # Returns
	//
	// - error: ErrConflict when the component already has a placement.
	CreatePlacement(ctx context.Context, placement domain.Placement) (domain.Placement, error)

	// DeletePlacement deletes the placement of the component. It does nothing if there is no placement.
	DeletePlacement(ctx context.Context, componentId string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Interface interface {
	Reader

	// Begin a transaction.
	Begin(ctx context.Context) (Tx, error)
}
