// Package reconciler deploys all enabled components of an instance again.
package reconciler

import (
	"context"

	"github.com/opst/knitfleet/pkg/deployer"
	"github.com/opst/knitfleet/pkg/domain"
	kdb "github.com/opst/knitfleet/pkg/domain/store/db"
	xe "github.com/opst/knitfleet/pkg/errors"
	"github.com/opst/knitfleet/pkg/metrics"
	"github.com/opst/knitfleet/pkg/placement"
	"github.com/opst/knitfleet/pkg/utils/echoutil"
)

// ComponentError is a failure on a component during Sync.
type ComponentError struct {
	Component domain.Component
	Err       error
}

type SyncResult struct {
	// Total is the number of enabled components of the instance.
	Total  int
	Synced int
	Errors []ComponentError
}

type Reconciler interface {
	// Sync deploys each enabled component of the instance, one transaction for each.
	//
	// Failures on components do not stop Sync. They are collected into SyncResult.Errors.
	//
	// # Returns
	//
	// - SyncResult
	//
	// - error: ErrMissing when the instance is not found.
	Sync(ctx context.Context, instanceId string) (SyncResult, error)
}

type reconciler struct {
	store    kdb.Interface
	records  placement.Records
	deployer deployer.Deployer
	logger   echoutil.Logger
}

var _ Reconciler = &reconciler{}

func New(store kdb.Interface, records placement.Records, deployer deployer.Deployer, logger echoutil.Logger) Reconciler {
	return &reconciler{store: store, records: records, deployer: deployer, logger: logger}
}

func (r *reconciler) Sync(ctx context.Context, instanceId string) (SyncResult, error) {
	instance, err := r.store.GetInstance(ctx, instanceId)
	if err != nil {
		return SyncResult{}, err
	}
	components, err := r.store.FindComponentsByInstance(ctx, instanceId)
	if err != nil {
		return SyncResult{}, xe.Wrap(err)
	}

	result := SyncResult{Errors: []ComponentError{}}
	for _, c := range components {
		if !c.Enabled {
			continue
		}
		result.Total += 1

		if err := r.sync(ctx, instance, c); err != nil {
			r.logger.Warnf(
				"sync: %s '%s' (id: %s) of instance %s is not deployed: %+v",
				c.Kind, c.Name, c.Id, instanceId, err,
			)
			metrics.RecordSync(false)
			result.Errors = append(result.Errors, ComponentError{Component: c, Err: err})
			continue
		}
		metrics.RecordSync(true)
		result.Synced += 1
	}
	return result, nil
}

func (r *reconciler) sync(ctx context.Context, instance domain.Instance, c domain.Component) error {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	p, cluster, err := r.records.GetOrCreate(ctx, tx, c)
	if err != nil {
		return err
	}
	_, err = r.deployer.Deploy(ctx, tx, c, instance.EnvironmentId, cluster, p)
	return err
}
