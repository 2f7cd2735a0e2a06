package mock

import (
	"context"
	"testing"

	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/lifecycle"
)

type UpdateArgs struct {
	Id      string
	Request lifecycle.UpdateRequest
}

// Orchestrator is a mock of lifecycle.Orchestrator.
type Orchestrator struct {
	t    *testing.T
	kind domain.Kind
	Impl struct {
		Create func(ctx context.Context, req lifecycle.CreateRequest) (domain.Component, error)
		Update func(ctx context.Context, id string, req lifecycle.UpdateRequest) (domain.Component, error)
		Delete func(ctx context.Context, id string) (lifecycle.DeleteResult, error)
		Get    func(ctx context.Context, id string) (domain.Component, error)
		List   func(ctx context.Context) ([]domain.Component, error)
	}
	Calls struct {
		Create []lifecycle.CreateRequest
		Update []UpdateArgs
		Delete []string
		Get    []string
		List   int
	}
}

var _ lifecycle.Orchestrator = &Orchestrator{}

func New(t *testing.T, kind domain.Kind) *Orchestrator {
	return &Orchestrator{t: t, kind: kind}
}

func (o *Orchestrator) Kind() domain.Kind {
	return o.kind
}

func (o *Orchestrator) Create(ctx context.Context, req lifecycle.CreateRequest) (domain.Component, error) {
	o.t.Helper()
	o.Calls.Create = append(o.Calls.Create, req)
	if o.Impl.Create == nil {
		o.t.Fatal("Create not implemented")
	}
	return o.Impl.Create(ctx, req)
}

func (o *Orchestrator) Update(ctx context.Context, id string, req lifecycle.UpdateRequest) (domain.Component, error) {
	o.t.Helper()
	o.Calls.Update = append(o.Calls.Update, UpdateArgs{Id: id, Request: req})
	if o.Impl.Update == nil {
		o.t.Fatal("Update not implemented")
	}
	return o.Impl.Update(ctx, id, req)
}

func (o *Orchestrator) Delete(ctx context.Context, id string) (lifecycle.DeleteResult, error) {
	o.t.Helper()
	o.Calls.Delete = append(o.Calls.Delete, id)
	if o.Impl.Delete == nil {
		o.t.Fatal("Delete not implemented")
	}
	return o.Impl.Delete(ctx, id)
}

func (o *Orchestrator) Get(ctx context.Context, id string) (domain.Component, error) {
	o.t.Helper()
	o.Calls.Get = append(o.Calls.Get, id)
	if o.Impl.Get == nil {
		o.t.Fatal("Get not implemented")
	}
	return o.Impl.Get(ctx, id)
}

func (o *Orchestrator) List(ctx context.Context) ([]domain.Component, error) {
	o.t.Helper()
	o.Calls.List += 1
	if o.Impl.List == nil {
		o.t.Fatal("List not implemented")
	}
	return o.Impl.List(ctx)
}
