package mock

import (
	"context"
	"testing"

	"github.com/opst/knitfleet/pkg/reconciler"
)

type Reconciler struct {
	t    *testing.T
	Impl struct {
		Sync func(ctx context.Context, instanceId string) (reconciler.SyncResult, error)
	}
	Calls struct {
		Sync []string
	}
}

var _ reconciler.Reconciler = &Reconciler{}

func New(t *testing.T) *Reconciler {
	return &Reconciler{t: t}
}

func (r *Reconciler) Sync(ctx context.Context, instanceId string) (reconciler.SyncResult, error) {
	r.t.Helper()
	r.Calls.Sync = append(r.Calls.Sync, instanceId)
	if r.Impl.Sync == nil {
		r.t.Fatal("Sync not implemented")
	}
	return r.Impl.Sync(ctx, instanceId)
}
