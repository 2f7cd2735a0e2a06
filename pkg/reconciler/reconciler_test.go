package reconciler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/opst/knitfleet/pkg/deployer"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/domain/cluster/k8s"
	k8smock "github.com/opst/knitfleet/pkg/domain/cluster/k8s/mock"
	domerr "github.com/opst/knitfleet/pkg/domain/errors"
	"github.com/opst/knitfleet/pkg/domain/manifest"
	"github.com/opst/knitfleet/pkg/domain/store/db/fake"
	"github.com/opst/knitfleet/pkg/placement"
	"github.com/opst/knitfleet/pkg/reconciler"
	"github.com/opst/knitfleet/pkg/utils/echoutil"
	"github.com/opst/knitfleet/pkg/utils/try"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func worker(id, name string, enabled bool) domain.Component {
	return domain.Component{
		Id: id, InstanceId: "ins-1", Name: name, Kind: domain.KindWorker, Enabled: enabled,
		Settings: &domain.WorkerSettings{CommonSettings: domain.CommonSettings{CPU: 0.25, Memory: 128}},
	}
}

func TestSync(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, failOn string) (*fake.Store, *k8smock.Gateway, reconciler.Reconciler) {
		store := fake.New().
			PutInstance(domain.Instance{
				Id: "ins-1", Application: domain.Application{Id: "app-1", Name: "shop"},
				EnvironmentId: "env-1", Image: "registry.example.com/shop", Version: "2.0.0", Enabled: true,
			}).
			PutInstance(domain.Instance{
				Id: "ins-2", Application: domain.Application{Id: "app-2", Name: "blog"},
				EnvironmentId: "env-1", Image: "registry.example.com/blog", Version: "1.0.0", Enabled: true,
			}).
			PutCluster(domain.Cluster{Id: "cl-1", Name: "tokyo-a", EnvironmentId: "env-1"}).
			PutCluster(domain.Cluster{Id: "cl-2", Name: "tokyo-b", EnvironmentId: "env-1"}).
			PutComponent(worker("cmp-1", "broken", true)).
			PutComponent(worker("cmp-2", "exporter", true)).
			PutComponent(worker("cmp-3", "paused", false)).
			PutPlacement(domain.Placement{Id: "pl-1", ComponentId: "cmp-1", ClusterId: "cl-1"})

		gateway := k8smock.New(t)
		gateway.Impl.AvailableCapacity = func(ctx context.Context, c domain.Cluster) (domain.Capacity, error) {
			return domain.Capacity{CPU: resource.MustParse("1"), Memory: resource.MustParse("1Gi")}, nil
		}
		gateway.Impl.ApplyOrDelete = func(ctx context.Context, c domain.Cluster, manifests []*unstructured.Unstructured, op k8s.Operation) error {
			for _, m := range manifests {
				if m.GetLabels()[manifest.LabelName] == failOn {
					return errors.New("admission webhook denied the request")
				}
			}
			return nil
		}

		logger := echoutil.DiscardLogger()
		selector := placement.NewSelector(store, gateway, logger)
		testee := reconciler.New(
			store,
			placement.NewRecords(selector),
			deployer.New(store, gateway, manifest.New(), logger),
			logger,
		)
		return store, gateway, testee
	}

	t.Run("a failing component does not stop others", func(t *testing.T) {
		store, gateway, testee := setup(t, "broken")

		got := try.To(testee.Sync(ctx, "ins-1")).OrFatal(t)

		if got.Total != 2 || got.Synced != 1 {
			t.Errorf("result: %+v", got)
		}
		if len(got.Errors) != 1 {
			t.Fatalf("errors: %+v", got.Errors)
		}
		if e := got.Errors[0]; e.Component.Id != "cmp-1" || !errors.Is(e.Err, domerr.ErrDeployFailed) {
			t.Errorf("error: %+v", e)
		}

		// disabled component is not touched
		for _, call := range gateway.Calls.ApplyOrDelete {
			for _, m := range call.Manifests {
				if m.GetLabels()[manifest.LabelName] == "paused" {
					t.Errorf("disabled component is deployed: %s", m.GetName())
				}
			}
		}

		// the component without placement is placed.
		placed := map[string]string{}
		for _, p := range store.Placements() {
			placed[p.ComponentId] = p.ClusterId
		}
		if placed["cmp-1"] != "cl-1" {
			t.Errorf("existing placement is moved: %v", placed)
		}
		if _, ok := placed["cmp-2"]; !ok {
			t.Errorf("cmp-2 is not placed: %v", placed)
		}
		if _, ok := placed["cmp-3"]; ok {
			t.Errorf("cmp-3 is placed: %v", placed)
		}
	})

	t.Run("all enabled components are synced", func(t *testing.T) {
		_, gateway, testee := setup(t, "")

		got := try.To(testee.Sync(ctx, "ins-1")).OrFatal(t)
		if got.Total != 2 || got.Synced != 2 || len(got.Errors) != 0 {
			t.Errorf("result: %+v", got)
		}
		if n := len(gateway.Calls.ApplyOrDelete); n != 2 {
			t.Errorf("ApplyOrDelete is called %d times", n)
		}
	})

	t.Run("instance without components", func(t *testing.T) {
		_, _, testee := setup(t, "")
		got := try.To(testee.Sync(ctx, "ins-2")).OrFatal(t)
		if got.Total != 0 || got.Synced != 0 || len(got.Errors) != 0 {
			t.Errorf("result: %+v", got)
		}
	})

	t.Run("missing instance", func(t *testing.T) {
		_, _, testee := setup(t, "")
		if _, err := testee.Sync(ctx, "ins-x"); !errors.Is(err, domerr.ErrMissing) {
			t.Errorf("expected ErrMissing, but got %v", err)
		}
	})
}
