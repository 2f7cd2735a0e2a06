package knitfleet_test

import (
	"context"
	"testing"

	"github.com/opst/knitfleet/pkg/domain"
	k8smock "github.com/opst/knitfleet/pkg/domain/cluster/k8s/mock"
	"github.com/opst/knitfleet/pkg/domain/knitfleet"
	"github.com/opst/knitfleet/pkg/domain/store/db/fake"
	"github.com/opst/knitfleet/pkg/utils/echoutil"
	"github.com/opst/knitfleet/pkg/utils/try"
)

func TestAttach(t *testing.T) {
	ctx := context.Background()
	store := fake.New().
		PutInstance(domain.Instance{Id: "ins-1", Application: domain.Application{Id: "app-1", Name: "shop"}, EnvironmentId: "env-1"}).
		PutComponent(domain.Component{
			Id: "cmp-1", InstanceId: "ins-1", Name: "exporter", Kind: domain.KindWorker,
			Settings: &domain.WorkerSettings{},
		})

	testee := knitfleet.Attach(store, k8smock.New(t), nil, echoutil.DiscardLogger())
	defer testee.Close()

	for _, k := range domain.Kinds() {
		o := testee.Orchestrator(k)
		if o == nil {
			t.Fatalf("no orchestrator for %s", k)
		}
		if o.Kind() != k {
			t.Errorf("orchestrator for %s manages %s", k, o.Kind())
		}
	}
	if o := testee.Orchestrator(domain.Kind("daemon")); o != nil {
		t.Errorf("orchestrator for unknown kind: %v", o)
	}

	ws := try.To(testee.Orchestrator(domain.KindWorker).List(ctx)).OrFatal(t)
	if len(ws) != 1 || ws[0].Id != "cmp-1" {
		t.Errorf("workers: %+v", ws)
	}

	// disabled components are not synced.
	got := try.To(testee.Reconciler().Sync(ctx, "ins-1")).OrFatal(t)
	if got.Total != 0 {
		t.Errorf("sync: %+v", got)
	}
}
