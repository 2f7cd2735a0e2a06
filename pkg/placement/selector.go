// Package placement decides and records which cluster each component runs on.
package placement

import (
	"context"

	"github.com/opst/knitfleet/pkg/domain"
	k8s "github.com/opst/knitfleet/pkg/domain/cluster/k8s"
	domerr "github.com/opst/knitfleet/pkg/domain/errors"
	kdb "github.com/opst/knitfleet/pkg/domain/store/db"
	xe "github.com/opst/knitfleet/pkg/errors"
	"github.com/opst/knitfleet/pkg/utils/echoutil"
	"golang.org/x/sync/errgroup"
)

type Selector interface {
	// Select chooses the least loaded cluster in the environment.
	//
	// The cluster with the most free CPU wins, then the one with the most free memory.
	// On a tie, the first cluster ordered by name wins.
	// Clusters whose capacity cannot be read are skipped.
	//
	// # Returns
	//
	// - domain.Cluster
	//
	// - error: ErrNoEligibleCluster when there are no clusters or all of them are unreachable.
	Select(ctx context.Context, environmentId string) (domain.Cluster, error)
}

type selector struct {
	store   kdb.Reader
	gateway k8s.Gateway
	logger  echoutil.Logger
}

var _ Selector = &selector{}

func NewSelector(store kdb.Reader, gateway k8s.Gateway, logger echoutil.Logger) Selector {
	return &selector{store: store, gateway: gateway, logger: logger}
}

type candidate struct {
	cluster   domain.Cluster
	capacity  domain.Capacity
	reachable bool
}

func (s *selector) Select(ctx context.Context, environmentId string) (domain.Cluster, error) {
	clusters, err := s.store.FindClustersByEnvironment(ctx, environmentId)
	if err != nil {
		return domain.Cluster{}, err
	}

	candidates := make([]candidate, len(clusters))
	eg, egctx := errgroup.WithContext(ctx)
	for i := range clusters {
		eg.Go(func() error {
			c := clusters[i]
			capacity, err := s.gateway.AvailableCapacity(egctx, c)
			if err != nil {
				s.logger.Warnf("cluster %s (%s) is skipped: %s", c.Name, c.Id, err)
				candidates[i] = candidate{cluster: c}
				return nil
			}
			candidates[i] = candidate{cluster: c, capacity: capacity, reachable: true}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return domain.Cluster{}, xe.Wrap(err)
	}
	if err := ctx.Err(); err != nil {
		return domain.Cluster{}, xe.Wrap(err)
	}

	var best *candidate
	for i := range candidates {
		c := &candidates[i]
		if !c.reachable {
			continue
		}
		if best == nil || best.capacity.Compare(c.capacity) < 0 {
			best = c
		}
	}
	if best == nil {
		return domain.Cluster{}, xe.Wrap(domerr.ErrNoEligibleCluster)
	}
	return best.cluster, nil
}
