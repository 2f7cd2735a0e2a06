package placement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/opst/knitfleet/pkg/domain"
	domerr "github.com/opst/knitfleet/pkg/domain/errors"
	kdb "github.com/opst/knitfleet/pkg/domain/store/db"
	xe "github.com/opst/knitfleet/pkg/errors"
)

// Records manages placements: one per component, never moved.
type Records interface {
	// Ensure returns the placement of the component, creating one on the cluster if missing.
	//
	// When the component is already placed, the existing placement is returned
	// even if it is on another cluster.
	Ensure(ctx context.Context, tx kdb.Tx, component domain.Component, cluster domain.Cluster) (domain.Placement, error)

	// GetOrCreate returns the placement of the component and its cluster.
	//
	// A component without placement is placed on the cluster chosen by Selector
	// from the environment of its instance.
	//
	// # Returns
	//
	// - error: ErrMissing when the instance or cluster is not found.
	// ErrNoEligibleCluster when no clusters can host the component.
	GetOrCreate(ctx context.Context, tx kdb.Tx, component domain.Component) (domain.Placement, domain.Cluster, error)
}

type records struct {
	selector Selector
	newId    func() string
}

var _ Records = &records{}

func NewRecords(selector Selector) Records {
	return &records{selector: selector, newId: uuid.NewString}
}

func (r *records) Ensure(ctx context.Context, tx kdb.Tx, component domain.Component, cluster domain.Cluster) (domain.Placement, error) {
	if p, found, err := tx.FindPlacementByComponent(ctx, component.Id); err != nil {
		return domain.Placement{}, err
	} else if found {
		return p, nil
	}

	p, err := tx.CreatePlacement(ctx, domain.Placement{
		Id:          r.newId(),
		ComponentId: component.Id,
		ClusterId:   cluster.Id,
	})
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domerr.ErrConflict) {
		return domain.Placement{}, err
	}

	// someone else has placed the component. follow it.
	p, found, rerr := tx.FindPlacementByComponent(ctx, component.Id)
	if rerr != nil {
		return domain.Placement{}, rerr
	}
	if !found {
		return domain.Placement{}, err
	}
	return p, nil
}

func (r *records) GetOrCreate(ctx context.Context, tx kdb.Tx, component domain.Component) (domain.Placement, domain.Cluster, error) {
	p, found, err := tx.FindPlacementByComponent(ctx, component.Id)
	if err != nil {
		return domain.Placement{}, domain.Cluster{}, err
	}
	if found {
		cluster, err := tx.GetCluster(ctx, p.ClusterId)
		if err != nil {
			return domain.Placement{}, domain.Cluster{}, err
		}
		return p, cluster, nil
	}

	instance, err := tx.GetInstance(ctx, component.InstanceId)
	if err != nil {
		return domain.Placement{}, domain.Cluster{}, err
	}
	cluster, err := r.selector.Select(ctx, instance.EnvironmentId)
	if err != nil {
		return domain.Placement{}, domain.Cluster{}, err
	}

	p, err = r.Ensure(ctx, tx, component, cluster)
	if err != nil {
		return domain.Placement{}, domain.Cluster{}, err
	}
	if p.ClusterId != cluster.Id {
		if cluster, err = tx.GetCluster(ctx, p.ClusterId); err != nil {
			return domain.Placement{}, domain.Cluster{}, xe.Wrap(err)
		}
	}
	return p, cluster, nil
}
