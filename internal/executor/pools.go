package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vk/corpusmill/internal/metrics"
)

// Pools is the set of named resource pools jobs acquire capacity from while
// running. Each pool is a weighted semaphore sized by the profile.
type Pools struct {
	sems    map[string]*semaphore.Weighted
	metrics *metrics.Collector
}

// NewPools builds the pool set from capacities. Capacities must be positive.
func NewPools(capacities map[string]int, collector *metrics.Collector) (*Pools, error) {
	p := &Pools{
		sems:    make(map[string]*semaphore.Weighted, len(capacities)),
		metrics: collector,
	}
	for name, capacity := range capacities {
		if capacity < 1 {
			return nil, fmt.Errorf("pool %q has capacity %d, want at least 1", name, capacity)
		}
		p.sems[name] = semaphore.NewWeighted(int64(capacity))
	}
	return p, nil
}

// Has reports whether a pool with the given name is configured.
func (p *Pools) Has(name string) bool {
	_, ok := p.sems[name]
	return ok
}

// Acquire takes one unit from every named pool, waiting as needed, and
// returns the release function. Names are deduplicated and acquired in
// sorted order so two jobs wanting the same pools can never deadlock each
// other. On error nothing stays held.
func (p *Pools) Acquire(ctx context.Context, names []string) (release func(), err error) {
	if len(names) == 0 {
		return func() {}, nil
	}

	ordered := append([]string(nil), names...)
	sort.Strings(ordered)
	held := make([]*semaphore.Weighted, 0, len(ordered))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release(1)
		}
	}

	prev := ""
	for _, name := range ordered {
		if name == prev {
			continue
		}
		prev = name

		sem, ok := p.sems[name]
		if !ok {
			releaseHeld()
			return nil, fmt.Errorf("no pool named %q", name)
		}
		waitStart := time.Now()
		if err := sem.Acquire(ctx, 1); err != nil {
			releaseHeld()
			return nil, err
		}
		p.metrics.PoolWaited(name, time.Since(waitStart).Seconds())
		held = append(held, sem)
	}
	return releaseHeld, nil
}
