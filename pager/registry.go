package pager

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/zqlite/zqlite-go/core"
)

// Shared is the per-file state connections in one process share: the pager
// itself and the single-writer lock. Entries are reference counted and torn
// down when the last connection releases them.
type Shared struct {
	key   string
	Pager *Pager

	refs   int
	writer sync.Mutex
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]*Shared)
)

// ResolveKey normalizes a database path into a registry key.
func ResolveKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// Acquire returns the shared state for key, opening the pager via open when
// this is the first reference.
func Acquire(key string, open func() (*Pager, error)) (*Shared, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if s, ok := registry[key]; ok {
		s.refs++
		return s, nil
	}

	p, err := open()
	if err != nil {
		return nil, err
	}

	s := &Shared{key: key, Pager: p, refs: 1}
	registry[key] = s
	return s, nil
}

// AcquireExclusive wraps a pager that is never shared (memory databases).
func AcquireExclusive(p *Pager) *Shared {
	return &Shared{Pager: p, refs: 1}
}

// Release drops one reference, closing the pager when it was the last.
func (s *Shared) Release() error {
	registryMu.Lock()
	defer registryMu.Unlock()

	s.refs--
	if s.refs > 0 {
		return nil
	}
	if s.key != "" {
		delete(registry, s.key)
	}
	return s.Pager.Close()
}

// LockWriter acquires the single-writer lock, polling until the timeout.
// Contention surfaces as a busy error, distinct from hard failures and safe
// to retry.
func (s *Shared) LockWriter(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if s.writer.TryLock() {
			return nil
		}
		if time.Now().After(deadline) {
			return core.NewError(core.KindBusy, "database is locked")
		}
		time.Sleep(time.Millisecond)
	}
}

// UnlockWriter releases the single-writer lock.
func (s *Shared) UnlockWriter() {
	s.writer.Unlock()
}
