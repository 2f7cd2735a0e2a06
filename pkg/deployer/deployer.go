// Package deployer applies and deletes manifests of components on their clusters,
// within the boundary of store transactions.
package deployer

import (
	"context"

	"github.com/opst/knitfleet/pkg/desiredstate"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/domain/cluster/k8s"
	domerr "github.com/opst/knitfleet/pkg/domain/errors"
	"github.com/opst/knitfleet/pkg/domain/manifest"
	kdb "github.com/opst/knitfleet/pkg/domain/store/db"
	xe "github.com/opst/knitfleet/pkg/errors"
	"github.com/opst/knitfleet/pkg/metrics"
	"github.com/opst/knitfleet/pkg/utils/echoutil"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

type Cleanup string

const (
	// manifests are deleted from the cluster.
	CleanupDone Cleanup = "done"

	// deleting manifests has failed. They may remain in the cluster.
	CleanupFailed Cleanup = "failed"

	// there was nothing to be deleted.
	CleanupSkipped Cleanup = "skipped"
)

// DeleteOutcome tells how remote resources are cleaned up.
type DeleteOutcome struct {
	Cleanup Cleanup

	// Cause of CleanupFailed.
	Err error
}

// Deployed is the state of a component after Deploy.
type Deployed struct {
	Component domain.Component
	Placement domain.Placement
}

type Deployer interface {
	// Deploy applies manifests of the component to the cluster, and then commits tx.
	//
	// When it fails, tx is rolled back.
	//
	// # Args
	//
	// - tx: transaction where the component (and its placement) are written.
	// It is committed or rolled back by Deploy.
	//
	// - component: component to be deployed.
	//
	// - environmentId: environment whose settings are injected.
	//
	// - cluster: cluster where the component is placed.
	//
	// - placement: placement of the component.
	//
	// # Returns
	//
	// - Deployed: the component and its placement, read again after commit.
	//
	// - error: *DeployError (ErrDeployFailed) when the cluster rejects manifests.
	// ErrInvalidInput when manifests cannot be rendered.
	Deploy(
		ctx context.Context, tx kdb.Tx,
		component domain.Component, environmentId string,
		cluster domain.Cluster, placement domain.Placement,
	) (Deployed, error)

	// DeleteSafe deletes manifests of the component from the cluster, and then commits tx.
	//
	// Failures on remote deletion are logged and reported in DeleteOutcome,
	// and tx is committed even then.
	//
	// # Returns
	//
	// - DeleteOutcome
	//
	// - error: error on commit.
	DeleteSafe(ctx context.Context, tx kdb.Tx, component domain.Component, cluster domain.Cluster) (DeleteOutcome, error)

	// Withdraw deletes manifests of the component, as it was before the last commit,
	// from the cluster. It reads the store out of any transaction.
	//
	// Failures are logged and reported in DeleteOutcome.
	Withdraw(ctx context.Context, component domain.Component, cluster domain.Cluster) DeleteOutcome
}

type deployer struct {
	store    kdb.Reader
	gateway  k8s.Gateway
	renderer manifest.Renderer
	logger   echoutil.Logger
}

var _ Deployer = &deployer{}

// New returns a Deployer.
//
// # Args
//
// - store: store to read deployed components after commit.
//
// - gateway: access to clusters.
//
// - renderer: makes manifests of components.
//
// - logger: where failures of deletion are reported.
func New(store kdb.Reader, gateway k8s.Gateway, renderer manifest.Renderer, logger echoutil.Logger) Deployer {
	return &deployer{store: store, gateway: gateway, renderer: renderer, logger: logger}
}

// render reads what is needed to render the component through r, and renders it.
func (d *deployer) render(
	ctx context.Context, r kdb.Reader,
	component domain.Component, environmentId string, cluster domain.Cluster,
) ([]*unstructured.Unstructured, error) {
	instance, err := r.GetInstance(ctx, component.InstanceId)
	if err != nil {
		return nil, err
	}
	if environmentId == "" {
		environmentId = instance.EnvironmentId
	}
	settings, err := r.FindSettingsByEnvironment(ctx, environmentId)
	if err != nil {
		return nil, err
	}
	state, err := desiredstate.Build(component, settings)
	if err != nil {
		return nil, err
	}

	var gw domain.GatewayRef
	if ss, ok := state.Component.Settings.(*domain.ServiceSettings); ok && ss.Exposure.Routed() {
		if gw, err = d.gateway.GatewayReference(ctx, cluster); err != nil {
			return nil, xe.Wrap(err)
		}
	}

	return d.renderer.Render(manifest.Input{State: state, Instance: instance, Gateway: gw})
}

func (d *deployer) Deploy(
	ctx context.Context, tx kdb.Tx,
	component domain.Component, environmentId string,
	cluster domain.Cluster, placement domain.Placement,
) (Deployed, error) {
	defer tx.Rollback(ctx)

	manifests, err := d.render(ctx, tx, component, environmentId, cluster)
	if err != nil {
		return Deployed{}, err
	}

	if err := d.gateway.ApplyOrDelete(ctx, cluster, manifests, k8s.OperationApply); err != nil {
		metrics.RecordDeploy(component.Kind, false)
		if rerr := tx.Rollback(ctx); rerr != nil {
			d.logger.Warnf("rollback after failed deploy of %s '%s': %+v", component.Kind, component.Name, rerr)
		}
		return Deployed{}, xe.Wrap(&domerr.DeployError{
			Kind:      string(component.Kind),
			Component: component.Name,
			Cluster:   cluster.Name,
			Err:       err,
		})
	}
	metrics.RecordDeploy(component.Kind, true)

	if err := tx.Commit(ctx); err != nil {
		return Deployed{}, xe.Wrap(err)
	}

	refreshed, err := d.store.GetComponent(ctx, component.Id)
	if err != nil {
		return Deployed{}, err
	}
	if p, found, err := d.store.FindPlacementByComponent(ctx, component.Id); err != nil {
		return Deployed{}, err
	} else if found {
		placement = p
	}
	return Deployed{Component: refreshed, Placement: placement}, nil
}

func (d *deployer) DeleteSafe(ctx context.Context, tx kdb.Tx, component domain.Component, cluster domain.Cluster) (DeleteOutcome, error) {
	defer tx.Rollback(ctx)

	outcome := d.remove(ctx, tx, component, cluster)

	if err := tx.Commit(ctx); err != nil {
		return outcome, xe.Wrap(err)
	}
	return outcome, nil
}

func (d *deployer) Withdraw(ctx context.Context, component domain.Component, cluster domain.Cluster) DeleteOutcome {
	return d.remove(ctx, d.store, component, cluster)
}

func (d *deployer) remove(ctx context.Context, r kdb.Reader, component domain.Component, cluster domain.Cluster) DeleteOutcome {
	manifests, err := d.render(ctx, r, component, "", cluster)
	if err == nil {
		err = d.gateway.ApplyOrDelete(ctx, cluster, manifests, k8s.OperationDelete)
	}
	if err != nil {
		d.logger.Errorf(
			"failed to delete %s '%s' (id: %s) from Kubernetes cluster '%s': %+v",
			component.Kind, component.Name, component.Id, cluster.Name, err,
		)
		metrics.RecordDelete(component.Kind, metrics.ResultFailure)
		return DeleteOutcome{Cleanup: CleanupFailed, Err: err}
	}
	metrics.RecordDelete(component.Kind, metrics.ResultSuccess)
	return DeleteOutcome{Cleanup: CleanupDone}
}
