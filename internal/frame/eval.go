package frame

import (
	"sync"

	"cleanse/internal/stats"
)

// evalContext carries per-expression state through one evaluation.
type evalContext struct {
	cache *statCache
	hooks []func()
}

// later queues fn to run once the owning step has succeeded. Hooks run
// sequentially in expression order, never concurrently.
func (ec *evalContext) later(fn func()) { ec.hooks = append(ec.hooks, fn) }

// statCache memoizes sorted numeric values per column object for the
// lifetime of a single Collect. Columns are immutable, so the pointer is a
// sound key.
type statCache struct {
	mu       sync.Mutex
	byColumn map[*Column][]float64
}

func newStatCache() *statCache {
	return &statCache{byColumn: make(map[*Column][]float64)}
}

func (s *statCache) sorted(c *Column) ([]float64, error) {
	s.mu.Lock()
	v, ok := s.byColumn[c]
	s.mu.Unlock()
	if ok {
		return v, nil
	}
	xs, err := c.Floats()
	if err != nil {
		return nil, err
	}
	v = stats.Sorted(xs)
	s.mu.Lock()
	s.byColumn[c] = v
	s.mu.Unlock()
	return v, nil
}
