// this package provide "mock" implementation of the store for testing.
package mocks

import (
	"context"
	"errors"

	"github.com/opst/knitfleet/pkg/domain"
	kdb "github.com/opst/knitfleet/pkg/domain/store/db"
)

type ReaderImpl struct {
	GetInstance               func(ctx context.Context, instanceId string) (domain.Instance, error)
	GetComponent              func(ctx context.Context, componentId string) (domain.Component, error)
	FindComponents            func(ctx context.Context, kind domain.Kind) ([]domain.Component, error)
	FindComponentsByInstance  func(ctx context.Context, instanceId string) ([]domain.Component, error)
	GetCluster                func(ctx context.Context, clusterId string) (domain.Cluster, error)
	FindClustersByEnvironment func(ctx context.Context, environmentId string) ([]domain.Cluster, error)
	FindSettingsByEnvironment func(ctx context.Context, environmentId string) ([]domain.Setting, error)
	FindPlacementByComponent  func(ctx context.Context, componentId string) (domain.Placement, bool, error)
}

type ReaderCalls struct {
	GetInstance               CallLog[string]
	GetComponent              CallLog[string]
	FindComponents            CallLog[domain.Kind]
	FindComponentsByInstance  CallLog[string]
	GetCluster                CallLog[string]
	FindClustersByEnvironment CallLog[string]
	FindSettingsByEnvironment CallLog[string]
	FindPlacementByComponent  CallLog[string]
}

type reader struct {
	impl  *ReaderImpl
	calls *ReaderCalls
}

func notImplemented(name string) error {
	return errors.New("[MOCK] not implemented: " + name)
}

func (r reader) GetInstance(ctx context.Context, instanceId string) (domain.Instance, error) {
	r.calls.GetInstance = append(r.calls.GetInstance, instanceId)
	if r.impl.GetInstance == nil {
		panic(notImplemented("GetInstance"))
	}
	return r.impl.GetInstance(ctx, instanceId)
}

func (r reader) GetComponent(ctx context.Context, componentId string) (domain.Component, error) {
	r.calls.GetComponent = append(r.calls.GetComponent, componentId)
	if r.impl.GetComponent == nil {
		panic(notImplemented("GetComponent"))
	}
	return r.impl.GetComponent(ctx, componentId)
}

func (r reader) FindComponents(ctx context.Context, kind domain.Kind) ([]domain.Component, error) {
	r.calls.FindComponents = append(r.calls.FindComponents, kind)
	if r.impl.FindComponents == nil {
		panic(notImplemented("FindComponents"))
	}
	return r.impl.FindComponents(ctx, kind)
}

func (r reader) FindComponentsByInstance(ctx context.Context, instanceId string) ([]domain.Component, error) {
	r.calls.FindComponentsByInstance = append(r.calls.FindComponentsByInstance, instanceId)
	if r.impl.FindComponentsByInstance == nil {
		panic(notImplemented("FindComponentsByInstance"))
	}
	return r.impl.FindComponentsByInstance(ctx, instanceId)
}

func (r reader) GetCluster(ctx context.Context, clusterId string) (domain.Cluster, error) {
	r.calls.GetCluster = append(r.calls.GetCluster, clusterId)
	if r.impl.GetCluster == nil {
		panic(notImplemented("GetCluster"))
	}
	return r.impl.GetCluster(ctx, clusterId)
}

func (r reader) FindClustersByEnvironment(ctx context.Context, environmentId string) ([]domain.Cluster, error) {
	r.calls.FindClustersByEnvironment = append(r.calls.FindClustersByEnvironment, environmentId)
	if r.impl.FindClustersByEnvironment == nil {
		panic(notImplemented("FindClustersByEnvironment"))
	}
	return r.impl.FindClustersByEnvironment(ctx, environmentId)
}

func (r reader) FindSettingsByEnvironment(ctx context.Context, environmentId string) ([]domain.Setting, error) {
	r.calls.FindSettingsByEnvironment = append(r.calls.FindSettingsByEnvironment, environmentId)
	if r.impl.FindSettingsByEnvironment == nil {
		panic(notImplemented("FindSettingsByEnvironment"))
	}
	return r.impl.FindSettingsByEnvironment(ctx, environmentId)
}

func (r reader) FindPlacementByComponent(ctx context.Context, componentId string) (domain.Placement, bool, error) {
	r.calls.FindPlacementByComponent = append(r.calls.FindPlacementByComponent, componentId)
	if r.impl.FindPlacementByComponent == nil {
		panic(notImplemented("FindPlacementByComponent"))
	}
	return r.impl.FindPlacementByComponent(ctx, componentId)
}

type Store struct {
	Impl struct {
		ReaderImpl
		Begin func(ctx context.Context) (kdb.Tx, error)
	}
	Calls struct {
		ReaderCalls
		Begin CallLog[struct{}]
	}
}

var _ kdb.Interface = &Store{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) reader() reader {
	return reader{impl: &s.Impl.ReaderImpl, calls: &s.Calls.ReaderCalls}
}

func (s *Store) GetInstance(ctx context.Context, instanceId string) (domain.Instance, error) {
	return s.reader().GetInstance(ctx, instanceId)
}

func (s *Store) GetComponent(ctx context.Context, componentId string) (domain.Component, error) {
	return s.reader().GetComponent(ctx, componentId)
}

func (s *Store) FindComponents(ctx context.Context, kind domain.Kind) ([]domain.Component, error) {
	return s.reader().FindComponents(ctx, kind)
}

func (s *Store) FindComponentsByInstance(ctx context.Context, instanceId string) ([]domain.Component, error) {
	return s.reader().FindComponentsByInstance(ctx, instanceId)
}

func (s *Store) GetCluster(ctx context.Context, clusterId string) (domain.Cluster, error) {
	return s.reader().GetCluster(ctx, clusterId)
}

func (s *Store) FindClustersByEnvironment(ctx context.Context, environmentId string) ([]domain.Cluster, error) {
	return s.reader().FindClustersByEnvironment(ctx, environmentId)
}

func (s *Store) FindSettingsByEnvironment(ctx context.Context, environmentId string) ([]domain.Setting, error) {
	return s.reader().FindSettingsByEnvironment(ctx, environmentId)
}

func (s *Store) FindPlacementByComponent(ctx context.Context, componentId string) (domain.Placement, bool, error) {
	return s.reader().FindPlacementByComponent(ctx, componentId)
}

func (s *Store) Begin(ctx context.Context) (kdb.Tx, error) {
	s.Calls.Begin = append(s.Calls.Begin, struct{}{})
	if s.Impl.Begin == nil {
		panic(notImplemented("Begin"))
	}
	return s.Impl.Begin(ctx)
}

type Tx struct {
	Impl struct {
		ReaderImpl
		LockComponent   func(ctx context.Context, componentId string) (domain.Component, error)
		CreateComponent func(ctx context.Context, component domain.Component) (domain.Component, error)
		UpdateComponent func(ctx context.Context, component domain.Component) (domain.Component, error)
		DeleteComponent func(ctx context.Context, componentId string) error
		CreatePlacement func(ctx context.Context, placement domain.Placement) (domain.Placement, error)
		DeletePlacement func(ctx context.Context, componentId string) error
	}
	Calls struct {
		ReaderCalls
		LockComponent   CallLog[string]
		CreateComponent CallLog[domain.Component]
		UpdateComponent CallLog[domain.Component]
		DeleteComponent CallLog[string]
		CreatePlacement CallLog[domain.Placement]
		DeletePlacement CallLog[string]
		Commit          CallLog[struct{}]
		Rollback        CallLog[struct{}]
	}

	// Committed is true after Commit succeeded.
	Committed bool

	// CommitError is returned from Commit if set.
	CommitError error
}

var _ kdb.Tx = &Tx{}

func NewTx() *Tx {
	return &Tx{}
}

func (tx *Tx) reader() reader {
	return reader{impl: &tx.Impl.ReaderImpl, calls: &tx.Calls.ReaderCalls}
}

func (tx *Tx) GetInstance(ctx context.Context, instanceId string) (domain.Instance, error) {
	return tx.reader().GetInstance(ctx, instanceId)
}

func (tx *Tx) GetComponent(ctx context.Context, componentId string) (domain.Component, error) {
	return tx.reader().GetComponent(ctx, componentId)
}

func (tx *Tx) FindComponents(ctx context.Context, kind domain.Kind) ([]domain.Component, error) {
	return tx.reader().FindComponents(ctx, kind)
}

func (tx *Tx) FindComponentsByInstance(ctx context.Context, instanceId string) ([]domain.Component, error) {
	return tx.reader().FindComponentsByInstance(ctx, instanceId)
}

func (tx *Tx) GetCluster(ctx context.Context, clusterId string) (domain.Cluster, error) {
	return tx.reader().GetCluster(ctx, clusterId)
}

func (tx *Tx) FindClustersByEnvironment(ctx context.Context, environmentId string) ([]domain.Cluster, error) {
	return tx.reader().FindClustersByEnvironment(ctx, environmentId)
}

func (tx *Tx) FindSettingsByEnvironment(ctx context.Context, environmentId string) ([]domain.Setting, error) {
	return tx.reader().FindSettingsByEnvironment(ctx, environmentId)
}

func (tx *Tx) FindPlacementByComponent(ctx context.Context, componentId string) (domain.Placement, bool, error) {
	return tx.reader().FindPlacementByComponent(ctx, componentId)
}

func (tx *Tx) LockComponent(ctx context.Context, componentId string) (domain.Component, error) {
	tx.Calls.LockComponent = append(tx.Calls.LockComponent, componentId)
	if tx.Impl.LockComponent == nil {
		panic(notImplemented("LockComponent"))
	}
	return tx.Impl.LockComponent(ctx, componentId)
}

func (tx *Tx) CreateComponent(ctx context.Context, component domain.Component) (domain.Component, error) {
	tx.Calls.CreateComponent = append(tx.Calls.CreateComponent, component)
	if tx.Impl.CreateComponent == nil {
		panic(notImplemented("CreateComponent"))
	}
	return tx.Impl.CreateComponent(ctx, component)
}

func (tx *Tx) UpdateComponent(ctx context.Context, component domain.Component) (domain.Component, error) {
	tx.Calls.UpdateComponent = append(tx.Calls.UpdateComponent, component)
	if tx.Impl.UpdateComponent == nil {
		panic(notImplemented("UpdateComponent"))
	}
	return tx.Impl.UpdateComponent(ctx, component)
}

func (tx *Tx) DeleteComponent(ctx context.Context, componentId string) error {
	tx.Calls.DeleteComponent = append(tx.Calls.DeleteComponent, componentId)
	if tx.Impl.DeleteComponent == nil {
		panic(notImplemented("DeleteComponent"))
	}
	return tx.Impl.DeleteComponent(ctx, componentId)
}

func (tx *Tx) CreatePlacement(ctx context.Context, placement domain.Placement) (domain.Placement, error) {
	tx.Calls.CreatePlacement = append(tx.Calls.CreatePlacement, placement)
	if tx.Impl.CreatePlacement == nil {
		panic(notImplemented("CreatePlacement"))
	}
	return tx.Impl.CreatePlacement(ctx, placement)
}

func (tx *Tx) DeletePlacement(ctx context.Context, componentId string) error {
	tx.Calls.DeletePlacement = append(tx.Calls.DeletePlacement, componentId)
	if tx.Impl.DeletePlacement == nil {
		panic(notImplemented("DeletePlacement"))
	}
	return tx.Impl.DeletePlacement(ctx, componentId)
}

func (tx *Tx) Commit(ctx context.Context) error {
	tx.Calls.Commit = append(tx.Calls.Commit, struct{}{})
	if tx.CommitError != nil {
		return tx.CommitError
	}
	tx.Committed = true
	return nil
}

func (tx *Tx) Rollback(ctx context.Context) error {
	tx.Calls.Rollback = append(tx.Calls.Rollback, struct{}{})
	return nil
}
