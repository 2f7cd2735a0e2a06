// Package fake provides an in-memory store for tests.
//
// Transactions work on a private copy of the store and replace the store on Commit.
// Concurrent transactions are serialized: Begin blocks until the other transaction ends.
package fake

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/opst/knitfleet/pkg/domain"
	pgerr "github.com/opst/knitfleet/pkg/domain/errors/dberrors/postgres"
	kdb "github.com/opst/knitfleet/pkg/domain/store/db"
	xe "github.com/opst/knitfleet/pkg/errors"
)

type state struct {
	instances  map[string]domain.Instance
	clusters   map[string]domain.Cluster
	settings   map[string]domain.Setting
	components map[string]domain.Component

	// component id -> placement
	placements map[string]domain.Placement
}

func newState() state {
	return state{
		instances:  map[string]domain.Instance{},
		clusters:   map[string]domain.Cluster{},
		settings:   map[string]domain.Setting{},
		components: map[string]domain.Component{},
		placements: map[string]domain.Placement{},
	}
}

func cloneComponent(c domain.Component) domain.Component {
	if c.Settings != nil {
		s, err := domain.CloneSettings(c.Settings)
		if err != nil {
			panic(err)
		}
		c.Settings = s
	}
	if c.URL != nil {
		u := *c.URL
		c.URL = &u
	}
	return c
}

func (s state) clone() state {
	n := newState()
	for k, v := range s.instances {
		n.instances[k] = v
	}
	for k, v := range s.clusters {
		n.clusters[k] = v
	}
	for k, v := range s.settings {
		n.settings[k] = v
	}
	for k, v := range s.components {
		n.components[k] = cloneComponent(v)
	}
	for k, v := range s.placements {
		n.placements[k] = v
	}
	return n
}

type Store struct {
	// guards state.
	mu    sync.Mutex
	state state

	// held while a transaction is alive.
	txLock sync.Mutex

	// Now is the clock for timestamps. time.Now if nil.
	Now func() time.Time

	// Commits counts committed transactions.
	Commits int
}

var _ kdb.Interface = &Store{}

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) PutInstance(i domain.Instance) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.instances[i.Id] = i
	return s
}

func (s *Store) PutCluster(c domain.Cluster) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.clusters[c.Id] = c
	return s
}

func (s *Store) PutSetting(st domain.Setting) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.settings[st.Id] = st
	return s
}

func (s *Store) PutComponent(c domain.Component) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.components[c.Id] = cloneComponent(c)
	return s
}

func (s *Store) PutPlacement(p domain.Placement) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.placements[p.ComponentId] = p
	return s
}

// Components returns all committed components, ordered by id.
func (s *Store) Components() []domain.Component {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]domain.Component, 0, len(s.state.components))
	for _, c := range s.state.components {
		ret = append(ret, cloneComponent(c))
	}
	slices.SortFunc(ret, func(a, b domain.Component) int { return strings.Compare(a.Id, b.Id) })
	return ret
}

// Placements returns all committed placements, ordered by component id.
func (s *Store) Placements() []domain.Placement {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]domain.Placement, 0, len(s.state.placements))
	for _, p := range s.state.placements {
		ret = append(ret, p)
	}
	slices.SortFunc(ret, func(a, b domain.Placement) int { return strings.Compare(a.ComponentId, b.ComponentId) })
	return ret
}

func (s *Store) snapshot() state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Store) GetInstance(ctx context.Context, instanceId string) (domain.Instance, error) {
	return reader{s.snapshot()}.GetInstance(ctx, instanceId)
}

func (s *Store) GetComponent(ctx context.Context, componentId string) (domain.Component, error) {
	return reader{s.snapshot()}.GetComponent(ctx, componentId)
}

func (s *Store) FindComponents(ctx context.Context, kind domain.Kind) ([]domain.Component, error) {
	return reader{s.snapshot()}.FindComponents(ctx, kind)
}

func (s *Store) FindComponentsByInstance(ctx context.Context, instanceId string) ([]domain.Component, error) {
	return reader{s.snapshot()}.FindComponentsByInstance(ctx, instanceId)
}

func (s *Store) GetCluster(ctx context.Context, clusterId string) (domain.Cluster, error) {
	return reader{s.snapshot()}.GetCluster(ctx, clusterId)
}

func (s *Store) FindClustersByEnvironment(ctx context.Context, environmentId string) ([]domain.Cluster, error) {
	return reader{s.snapshot()}.FindClustersByEnvironment(ctx, environmentId)
}

func (s *Store) FindSettingsByEnvironment(ctx context.Context, environmentId string) ([]domain.Setting, error) {
	return reader{s.snapshot()}.FindSettingsByEnvironment(ctx, environmentId)
}

func (s *Store) FindPlacementByComponent(ctx context.Context, componentId string) (domain.Placement, bool, error) {
	return reader{s.snapshot()}.FindPlacementByComponent(ctx, componentId)
}

func (s *Store) Begin(ctx context.Context) (kdb.Tx, error) {
	s.txLock.Lock()
	return &tx{reader: reader{s.snapshot()}, store: s}, nil
}

type reader struct {
	st state
}

func (r reader) GetInstance(_ context.Context, instanceId string) (domain.Instance, error) {
	i, ok := r.st.instances[instanceId]
	if !ok {
		return domain.Instance{}, xe.Wrap(pgerr.Missing{Table: "instance", Identity: instanceId})
	}
	return i, nil
}

func (r reader) GetComponent(_ context.Context, componentId string) (domain.Component, error) {
	c, ok := r.st.components[componentId]
	if !ok {
		return domain.Component{}, xe.Wrap(pgerr.Missing{Table: "component", Identity: componentId})
	}
	return cloneComponent(c), nil
}

func (r reader) FindComponents(_ context.Context, kind domain.Kind) ([]domain.Component, error) {
	ret := []domain.Component{}
	for _, c := range r.st.components {
		if c.Kind == kind {
			ret = append(ret, cloneComponent(c))
		}
	}
	slices.SortFunc(ret, func(a, b domain.Component) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.Id, b.Id)
	})
	return ret, nil
}

func (r reader) FindComponentsByInstance(_ context.Context, instanceId string) ([]domain.Component, error) {
	ret := []domain.Component{}
	for _, c := range r.st.components {
		if c.InstanceId == instanceId {
			ret = append(ret, cloneComponent(c))
		}
	}
	slices.SortFunc(ret, func(a, b domain.Component) int { return strings.Compare(a.Name, b.Name) })
	return ret, nil
}

func (r reader) GetCluster(_ context.Context, clusterId string) (domain.Cluster, error) {
	c, ok := r.st.clusters[clusterId]
	if !ok {
		return domain.Cluster{}, xe.Wrap(pgerr.Missing{Table: "cluster", Identity: clusterId})
	}
	return c, nil
}

func (r reader) FindClustersByEnvironment(_ context.Context, environmentId string) ([]domain.Cluster, error) {
	ret := []domain.Cluster{}
	for _, c := range r.st.clusters {
		if c.EnvironmentId == environmentId {
			ret = append(ret, c)
		}
	}
	slices.SortFunc(ret, func(a, b domain.Cluster) int { return strings.Compare(a.Name, b.Name) })
	return ret, nil
}

func (r reader) FindSettingsByEnvironment(_ context.Context, environmentId string) ([]domain.Setting, error) {
	ret := []domain.Setting{}
	for _, s := range r.st.settings {
		if s.EnvironmentId == environmentId {
			ret = append(ret, s)
		}
	}
	slices.SortFunc(ret, func(a, b domain.Setting) int { return strings.Compare(a.Key, b.Key) })
	return ret, nil
}

func (r reader) FindPlacementByComponent(_ context.Context, componentId string) (domain.Placement, bool, error) {
	p, ok := r.st.placements[componentId]
	return p, ok, nil
}

var errTxDone = errors.New("transaction has been already committed or rolled back")

type tx struct {
	reader
	store *Store
	done  bool
}

var _ kdb.Tx = &tx{}

func (t *tx) LockComponent(ctx context.Context, componentId string) (domain.Component, error) {
	if t.done {
		return domain.Component{}, errTxDone
	}
	return t.GetComponent(ctx, componentId)
}

func (t *tx) CreateComponent(_ context.Context, c domain.Component) (domain.Component, error) {
	if t.done {
		return domain.Component{}, errTxDone
	}
	if _, ok := t.st.instances[c.InstanceId]; !ok {
		return domain.Component{}, xe.Wrap(pgerr.Missing{Table: "instance", Identity: c.InstanceId})
	}
	if _, ok := t.st.components[c.Id]; ok {
		return domain.Component{}, xe.Wrap(pgerr.Conflict{Table: "component", Constraint: "component_pkey"})
	}
	for _, other := range t.st.components {
		if other.InstanceId == c.InstanceId && other.Name == c.Name {
			return domain.Component{}, xe.Wrap(pgerr.Conflict{Table: "component", Constraint: "component_instance_id_name_key"})
		}
	}
	now := t.store.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	t.st.components[c.Id] = cloneComponent(c)
	return cloneComponent(c), nil
}

func (t *tx) UpdateComponent(_ context.Context, c domain.Component) (domain.Component, error) {
	if t.done {
		return domain.Component{}, errTxDone
	}
	current, ok := t.st.components[c.Id]
	if !ok {
		return domain.Component{}, xe.Wrap(pgerr.Missing{Table: "component", Identity: c.Id})
	}
	current.Name = c.Name
	current.Settings = c.Settings
	current.Enabled = c.Enabled
	current.URL = c.URL
	current.UpdatedAt = t.store.now()
	t.st.components[c.Id] = cloneComponent(current)
	return cloneComponent(current), nil
}

func (t *tx) DeleteComponent(_ context.Context, componentId string) error {
	if t.done {
		return errTxDone
	}
	if _, ok := t.st.components[componentId]; !ok {
		return xe.Wrap(pgerr.Missing{Table: "component", Identity: componentId})
	}
	delete(t.st.components, componentId)
	delete(t.st.placements, componentId) // on delete cascade
	return nil
}

func (t *tx) CreatePlacement(_ context.Context, p domain.Placement) (domain.Placement, error) {
	if t.done {
		return domain.Placement{}, errTxDone
	}
	if _, ok := t.st.components[p.ComponentId]; !ok {
		return domain.Placement{}, xe.Wrap(pgerr.Missing{Table: "component", Identity: p.ComponentId})
	}
	if _, ok := t.st.clusters[p.ClusterId]; !ok {
		return domain.Placement{}, xe.Wrap(pgerr.Missing{Table: "cluster", Identity: p.ClusterId})
	}
	if _, ok := t.st.placements[p.ComponentId]; ok {
		return domain.Placement{}, xe.Wrap(pgerr.Conflict{Table: "placement", Constraint: "placement_component_unique"})
	}
	p.CreatedAt = t.store.now()
	t.st.placements[p.ComponentId] = p
	return p, nil
}

func (t *tx) DeletePlacement(_ context.Context, componentId string) error {
	if t.done {
		return errTxDone
	}
	delete(t.st.placements, componentId)
	return nil
}

func (t *tx) Commit(context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.store.mu.Lock()
	t.store.state = t.st
	t.store.Commits += 1
	t.store.mu.Unlock()
	t.store.txLock.Unlock()
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.txLock.Unlock()
	return nil
}
