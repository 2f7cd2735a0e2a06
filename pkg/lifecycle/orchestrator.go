// Package lifecycle drives creation, update and deletion of components.
//
// There is one Orchestrator for each kind of components.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/opst/knitfleet/pkg/deployer"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/domain/cluster/k8s"
	domerr "github.com/opst/knitfleet/pkg/domain/errors"
	kdb "github.com/opst/knitfleet/pkg/domain/store/db"
	xe "github.com/opst/knitfleet/pkg/errors"
	"github.com/opst/knitfleet/pkg/metrics"
	"github.com/opst/knitfleet/pkg/placement"
	"github.com/opst/knitfleet/pkg/utils/echoutil"
)

type CreateRequest struct {
	InstanceId string
	Name       string
	Settings   domain.Settings

	// Enabled is true when nil.
	Enabled *bool

	URL *string
}

// UpdateRequest is a patch to a component. Fields with nil are left untouched.
type UpdateRequest struct {
	Name     *string
	Settings domain.Settings
	Enabled  *bool

	// URL to be set. An empty string removes URL.
	URL *string
}

type DeleteResult struct {
	Id      string
	Cleanup deployer.Cleanup

	// Cause of cleanup failure.
	Err error
}

type Orchestrator interface {
	// Kind of components managed by the orchestrator.
	Kind() domain.Kind

	// Create registers a new component and deploys it, when it is enabled.
	//
	// When deploy fails, nothing is stored.
	//
	// # Returns
	//
	// - domain.Component: created component.
	//
	// - error: ErrInvalidInput, ErrMissing (instance), ErrNoEligibleCluster,
	// ErrCapabilityMismatch, ErrConflict (name) or ErrDeployFailed.
	Create(ctx context.Context, req CreateRequest) (domain.Component, error)

	// Update patches the component and deploys or deletes it as needed.
	//
	// # Returns
	//
	// - domain.Component: updated component.
	//
	// - error: ErrMissing, ErrInvalidInput, ErrCapabilityMismatch or ErrDeployFailed.
	Update(ctx context.Context, id string, req UpdateRequest) (domain.Component, error)

	// Delete removes the component from the store and its manifests from the cluster.
	//
	// Failures on the cluster do not fail Delete. They are reported in DeleteResult.
	Delete(ctx context.Context, id string) (DeleteResult, error)

	Get(ctx context.Context, id string) (domain.Component, error)

	List(ctx context.Context) ([]domain.Component, error)
}

// Services which orchestrators depend on.
type Services struct {
	Store    kdb.Interface
	Gateway  k8s.Gateway
	Selector placement.Selector
	Records  placement.Records
	Deployer deployer.Deployer
	Logger   echoutil.Logger
}

type orchestrator struct {
	kind  domain.Kind
	rules KindRules
	Services
	newId func() string
}

var _ Orchestrator = &orchestrator{}

// New returns the orchestrator of the kind.
func New(kind domain.Kind, services Services) (Orchestrator, error) {
	rules, ok := Kinds[kind]
	if !ok {
		return nil, xe.Wrap(fmt.Errorf(`%w: "%s"`, domain.ErrUnknownKind, kind))
	}
	return &orchestrator{kind: kind, rules: rules, Services: services, newId: uuid.NewString}, nil
}

// NewAll returns orchestrators of all kinds.
func NewAll(services Services) map[domain.Kind]Orchestrator {
	all := map[domain.Kind]Orchestrator{}
	for _, k := range domain.Kinds() {
		o, err := New(k, services)
		if err != nil {
			panic(err) // Kinds should cover domain.Kinds()
		}
		all[k] = o
	}
	return all
}

func (o *orchestrator) Kind() domain.Kind {
	return o.kind
}

func (o *orchestrator) missing(id string) error {
	return xe.WrapAsOuter(fmt.Errorf("%w: %s (id: %s)", domerr.ErrMissing, o.kind, id), 1)
}

// prepare normalizes and validates the component.
// prepare normalizes and validates c in place.
//
// With dropStaleURL, URL is cleared when the settings do not need one.
func (o *orchestrator) prepare(c *domain.Component, dropStaleURL bool) error {
	if err := domain.ValidateComponentName(c.Name); err != nil {
		return err
	}
	if c.Settings == nil {
		return domerr.NewValidation("settings", "required")
	}
	if k := c.Settings.Kind(); k != o.kind {
		return domerr.NewValidation("settings", "settings for %s is given to %s", k, o.kind)
	}
	if c.URL != nil && *c.URL == "" {
		c.URL = nil
	}
	o.rules.Normalize(c.Settings)
	if dropStaleURL {
		if e, ok := c.Settings.GetExposure(); !ok || !e.RequiresURL() {
			c.URL = nil
		}
	}
	return o.rules.Validate(*c)
}

func (o *orchestrator) checkCapabilities(ctx context.Context, cluster domain.Cluster, s domain.Settings) error {
	for _, capa := range o.rules.Capabilities(s) {
		ok, err := o.Gateway.CapabilityAvailable(ctx, cluster, capa)
		if err != nil {
			return xe.Wrap(err)
		}
		if !ok {
			return xe.Wrap(&domerr.CapabilityError{
				Cluster:    cluster.Name,
				Capability: capa.String(),
				Reason:     "the API is not served",
			})
		}
	}
	return nil
}

func (o *orchestrator) Create(ctx context.Context, req CreateRequest) (domain.Component, error) {
	component := domain.Component{
		Id:         o.newId(),
		InstanceId: req.InstanceId,
		Name:       req.Name,
		Kind:       o.kind,
		Settings:   req.Settings,
		Enabled:    req.Enabled == nil || *req.Enabled,
		URL:        req.URL,
	}
	if err := o.prepare(&component, false); err != nil {
		return domain.Component{}, err
	}

	instance, err := o.Store.GetInstance(ctx, component.InstanceId)
	if err != nil {
		return domain.Component{}, err
	}

	if !component.Enabled {
		tx, err := o.Store.Begin(ctx)
		if err != nil {
			return domain.Component{}, xe.Wrap(err)
		}
		defer tx.Rollback(ctx)
		created, err := tx.CreateComponent(ctx, component)
		if err != nil {
			return domain.Component{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return domain.Component{}, xe.Wrap(err)
		}
		return created, nil
	}

	cluster, err := o.Selector.Select(ctx, instance.EnvironmentId)
	if err != nil {
		return domain.Component{}, err
	}
	if err := o.checkCapabilities(ctx, cluster, component.Settings); err != nil {
		return domain.Component{}, err
	}

	tx, err := o.Store.Begin(ctx)
	if err != nil {
		return domain.Component{}, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	created, err := tx.CreateComponent(ctx, component)
	if err != nil {
		return domain.Component{}, err
	}
	p, err := o.Records.Ensure(ctx, tx, created, cluster)
	if err != nil {
		return domain.Component{}, err
	}
	deployed, err := o.Deployer.Deploy(ctx, tx, created, instance.EnvironmentId, cluster, p)
	if err != nil {
		return domain.Component{}, err
	}
	return deployed.Component, nil
}

func (o *orchestrator) Update(ctx context.Context, id string, req UpdateRequest) (domain.Component, error) {
	tx, err := o.Store.Begin(ctx)
	if err != nil {
		return domain.Component{}, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	current, err := tx.LockComponent(ctx, id)
	if err != nil {
		return domain.Component{}, err
	}
	if current.Kind != o.kind {
		return domain.Component{}, o.missing(id)
	}

	next := current
	if req.Name != nil {
		next.Name = *req.Name
	}
	if req.Settings != nil {
		next.Settings = req.Settings
	} else if current.Settings != nil {
		if next.Settings, err = domain.CloneSettings(current.Settings); err != nil {
			return domain.Component{}, err
		}
	}
	if req.URL != nil {
		next.URL = req.URL
	}
	if req.Enabled != nil {
		next.Enabled = *req.Enabled
	}
	if err := o.prepare(&next, req.Settings != nil && req.URL == nil); err != nil {
		return domain.Component{}, err
	}

	updated, err := tx.UpdateComponent(ctx, next)
	if err != nil {
		return domain.Component{}, err
	}

	switch {
	case current.Enabled && !updated.Enabled:
		p, found, err := tx.FindPlacementByComponent(ctx, id)
		if err != nil {
			return domain.Component{}, err
		}
		if !found {
			break
		}
		cluster, err := tx.GetCluster(ctx, p.ClusterId)
		if err != nil {
			return domain.Component{}, err
		}
		if _, err := o.Deployer.DeleteSafe(ctx, tx, current, cluster); err != nil {
			return domain.Component{}, err
		}
		return o.Store.GetComponent(ctx, id)

	case updated.Enabled && (!current.Enabled || req.Settings != nil || req.URL != nil || updated.Name != current.Name):
		p, cluster, err := o.Records.GetOrCreate(ctx, tx, updated)
		if err != nil {
			return domain.Component{}, err
		}
		if err := o.checkCapabilities(ctx, cluster, updated.Settings); err != nil {
			return domain.Component{}, err
		}
		instance, err := tx.GetInstance(ctx, updated.InstanceId)
		if err != nil {
			return domain.Component{}, err
		}
		deployed, err := o.Deployer.Deploy(ctx, tx, updated, instance.EnvironmentId, cluster, p)
		if err != nil {
			return domain.Component{}, err
		}
		if current.Enabled && updated.Name != current.Name {
			// resources are named after the component. those under the old name are orphans now.
			o.Deployer.Withdraw(ctx, current, cluster)
		}
		return deployed.Component, nil

	case req.Settings != nil:
		// disabled. settings are checked on the placed cluster, if any, and stored without deploy.
		p, found, err := tx.FindPlacementByComponent(ctx, id)
		if err != nil {
			return domain.Component{}, err
		}
		if found {
			cluster, err := tx.GetCluster(ctx, p.ClusterId)
			if err != nil {
				return domain.Component{}, err
			}
			if err := o.checkCapabilities(ctx, cluster, updated.Settings); err != nil {
				return domain.Component{}, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Component{}, xe.Wrap(err)
	}
	return o.Store.GetComponent(ctx, id)
}

func (o *orchestrator) Delete(ctx context.Context, id string) (DeleteResult, error) {
	tx, err := o.Store.Begin(ctx)
	if err != nil {
		return DeleteResult{}, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	component, err := tx.LockComponent(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	if component.Kind != o.kind {
		return DeleteResult{}, o.missing(id)
	}

	p, found, err := tx.FindPlacementByComponent(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	if !found {
		if err := tx.DeleteComponent(ctx, id); err != nil {
			return DeleteResult{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return DeleteResult{}, xe.Wrap(err)
		}
		metrics.RecordDelete(o.kind, metrics.ResultSkipped)
		return DeleteResult{Id: id, Cleanup: deployer.CleanupSkipped}, nil
	}

	cluster, err := tx.GetCluster(ctx, p.ClusterId)
	if err != nil {
		return DeleteResult{}, err
	}
	if err := tx.DeletePlacement(ctx, id); err != nil {
		return DeleteResult{}, err
	}
	if err := tx.DeleteComponent(ctx, id); err != nil {
		return DeleteResult{}, err
	}

	// DeleteSafe commits deletions above, regardless of the cluster.
	outcome, err := o.Deployer.DeleteSafe(ctx, tx, component, cluster)
	if err != nil {
		return DeleteResult{}, err
	}
	if outcome.Cleanup == deployer.CleanupFailed {
		o.Logger.Warnf(
			"%s '%s' (id: %s) is deleted, but its resources may remain in cluster '%s'",
			o.kind, component.Name, id, cluster.Name,
		)
	}
	return DeleteResult{Id: id, Cleanup: outcome.Cleanup, Err: outcome.Err}, nil
}

func (o *orchestrator) Get(ctx context.Context, id string) (domain.Component, error) {
	c, err := o.Store.GetComponent(ctx, id)
	if err != nil {
		return domain.Component{}, err
	}
	if c.Kind != o.kind {
		return domain.Component{}, o.missing(id)
	}
	return c, nil
}

func (o *orchestrator) List(ctx context.Context) ([]domain.Component, error) {
	return o.Store.FindComponents(ctx, o.kind)
}
