package credentials

import (
	"sync"
	"time"
)

// Pool is the shared set of API keys currently believed valid. It is always
// replaced wholesale, never edited key by key.
type Pool struct {
	mu          sync.RWMutex
	keys        []string
	refreshedAt time.Time
}

func NewPool() *Pool {
	return &Pool{}
}

// Snapshot returns a copy of the keys and the last successful refresh time.
func (p *Pool) Snapshot() ([]string, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return keys, p.refreshedAt
}

func (p *Pool) Replace(keys []string, at time.Time) {
	fresh := make([]string, len(keys))
	copy(fresh, keys)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = fresh
	p.refreshedAt = at
}

// SeedIfEmpty installs key as the only entry when the pool holds nothing.
// The refresh timestamp is left alone so the issuer is asked again next time.
func (p *Pool) SeedIfEmpty(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) > 0 {
		return false
	}
	p.keys = []string{key}
	return true
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.keys)
}

// pick returns keys[index(len)] under the read lock, or false when empty.
func (p *Pool) pick(index func(n int) int) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.keys) == 0 {
		return "", false
	}
	return p.keys[index(len(p.keys))], true
}
