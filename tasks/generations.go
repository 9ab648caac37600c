package tasks

import "sync"

// generations counts read-model writes per owner. A list loaded before a
// write must not be cached after the write evicted the owner's entry.
type generations struct {
	mu sync.Mutex
	n  map[string]uint64
}

func (g *generations) current(owner string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n[owner]
}

// storeIfCurrent runs store unless owner was written since gen was read.
func (g *generations) storeIfCurrent(owner string, gen uint64, store func() error) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n[owner] != gen {
		return false, nil
	}
	return true, store()
}

// advance marks a write for owner and runs evict under the same lock.
func (g *generations) advance(owner string, evict func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n == nil {
		g.n = map[string]uint64{}
	}
	g.n[owner]++
	return evict()
}
