// Package knitfleet builds all services of knitfleet.
package knitfleet

import (
	"context"

	fconf "github.com/opst/knitfleet/pkg/configs/fleetd"
	kpool "github.com/opst/knitfleet/pkg/conn/db/postgres/pool"
	"github.com/opst/knitfleet/pkg/deployer"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/domain/cluster/k8s"
	"github.com/opst/knitfleet/pkg/domain/manifest"
	kschema "github.com/opst/knitfleet/pkg/domain/schema/db"
	pgschema "github.com/opst/knitfleet/pkg/domain/schema/db/postgres"
	kdb "github.com/opst/knitfleet/pkg/domain/store/db"
	pgstore "github.com/opst/knitfleet/pkg/domain/store/db/postgres"
	xe "github.com/opst/knitfleet/pkg/errors"
	"github.com/opst/knitfleet/pkg/lifecycle"
	"github.com/opst/knitfleet/pkg/placement"
	"github.com/opst/knitfleet/pkg/reconciler"
	"github.com/opst/knitfleet/pkg/utils/echoutil"
)

type Knitfleet interface {
	Schema() kschema.SchemaInterface

	// Orchestrator of the kind. nil for unknown kinds.
	Orchestrator(kind domain.Kind) lifecycle.Orchestrator

	Reconciler() reconciler.Reconciler

	// Close releases connections to the database.
	Close()
}

type knitfleet struct {
	schema        kschema.SchemaInterface
	orchestrators map[domain.Kind]lifecycle.Orchestrator
	reconciler    reconciler.Reconciler
	close         func()
}

// New connects to the database and clusters as configured, and builds services.
func New(ctx context.Context, config *fconf.FleetdConfig, logger echoutil.Logger) (Knitfleet, error) {
	pool, err := kpool.Connect(ctx, config.Database())
	if err != nil {
		return nil, xe.Wrap(err)
	}

	var schema kschema.SchemaInterface
	if repo := config.SchemaRepository(); repo != "" {
		schema = pgschema.FromDirectory(pool, repo)
	} else {
		schema = pgschema.New(pool)
	}

	gw := config.Gateway()
	gateway := k8s.New(
		k8s.NewConnector(gw.Timeout(), gw.InsecureSkipTLSVerify()),
		gw.FieldManager(),
	)

	kf := attach(pgstore.New(pool), gateway, schema, logger)
	kf.close = pool.Close
	return kf, nil
}

// Attach builds services on the store and the gateway.
func Attach(store kdb.Interface, gateway k8s.Gateway, schema kschema.SchemaInterface, logger echoutil.Logger) Knitfleet {
	return attach(store, gateway, schema, logger)
}

func attach(store kdb.Interface, gateway k8s.Gateway, schema kschema.SchemaInterface, logger echoutil.Logger) *knitfleet {
	selector := placement.NewSelector(store, gateway, logger)
	records := placement.NewRecords(selector)
	dep := deployer.New(store, gateway, manifest.New(), logger)

	return &knitfleet{
		schema: schema,
		orchestrators: lifecycle.NewAll(lifecycle.Services{
			Store:    store,
			Gateway:  gateway,
			Selector: selector,
			Records:  records,
			Deployer: dep,
			Logger:   logger,
		}),
		reconciler: reconciler.New(store, records, dep, logger),
		close:      func() {},
	}
}

func (k *knitfleet) Schema() kschema.SchemaInterface {
	return k.schema
}

func (k *knitfleet) Orchestrator(kind domain.Kind) lifecycle.Orchestrator {
	return k.orchestrators[kind]
}

func (k *knitfleet) Reconciler() reconciler.Reconciler {
	return k.reconciler
}

func (k *knitfleet) Close() {
	k.close()
}
