package txn

import (
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/pager"
	"github.com/zqlite/zqlite-go/wal"
)

// State tracks where a transaction is in its lifecycle.
type State int

const (
	StateNone State = iota
	StateActive
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitting:
		return "committing"
	default:
		return "none"
	}
}

// DefaultLockTimeout bounds how long Begin waits for the writer lock
// before reporting busy.
const DefaultLockTimeout = 5 * time.Second

// Txn is one transaction: an id, the log position it began at, and the
// dirty-page overlay its statements write through.
type Txn struct {
	ID       uuid.UUID
	Explicit bool

	state     State
	beginLSN  uint64
	beginRoot uint32
	root      uint32
	store     *Store
}

// Store returns the transaction's view of the page file.
func (t *Txn) Store() *Store {
	return t.store
}

// Root returns the transaction's view of the schema root: the pending
// root once a statement moved it, the root it began at otherwise.
func (t *Txn) Root() uint32 {
	return t.root
}

// SetRoot records a schema root moved by a statement. The shared pager
// learns it only at commit, so concurrent readers keep resolving the
// last committed root.
func (t *Txn) SetRoot(pageNo uint32) {
	t.root = pageNo
}

func (t *Txn) State() State {
	return t.state
}

// Manager runs transactions against one shared database file. At most
// one transaction is active per manager; the registry's writer lock
// keeps managers on the same file from writing concurrently.
type Manager struct {
	shared  *pager.Shared
	log     *wal.WAL
	timeout time.Duration

	mu      sync.Mutex
	current *Txn
}

func NewManager(shared *pager.Shared, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Manager{shared: shared, timeout: timeout}
}

// SetWAL switches the manager to write-ahead logging. Pass nil to fall
// back to direct writes.
func (m *Manager) SetWAL(log *wal.WAL) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = log
}

func (m *Manager) WAL() *wal.WAL {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.log
}

// Timeout returns the manager's writer-lock timeout.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Current returns the active transaction, or nil.
func (m *Manager) Current() *Txn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Begin starts a transaction, waiting up to the lock timeout for the
// writer lock. A BEGIN inside an active transaction is a usage error.
func (m *Manager) Begin(explicit bool) (*Txn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil, core.NewError(core.KindUsage, "cannot start a transaction within a transaction")
	}
	if err := m.shared.LockWriter(m.timeout); err != nil {
		return nil, err
	}

	p := m.shared.Pager
	t := &Txn{
		ID:        uuid.New(),
		Explicit:  explicit,
		state:     StateActive,
		beginRoot: p.SchemaRoot(),
		root:      p.SchemaRoot(),
		store:     newStore(p),
	}
	if m.log != nil {
		t.beginLSN = m.log.LSN()
	}
	m.current = t
	return t, nil
}

// Ensure returns the active transaction, starting an implicit one when
// none is active. The second result reports whether this call started
// it; the statement layer commits or rolls back implicit transactions
// it started.
func (m *Manager) Ensure() (*Txn, bool, error) {
	if t := m.Current(); t != nil {
		return t, false, nil
	}
	t, err := m.Begin(false)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// Commit makes the active transaction durable. With a WAL the dirty
// pages and a commit frame are logged and synced before the main file
// is touched; without one the pages are written and the file synced
// directly.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.current
	if t == nil {
		return core.NewError(core.KindUsage, "cannot commit - no transaction is active")
	}
	t.state = StateCommitting

	if m.log != nil {
		pageNos := make([]uint32, 0, len(t.store.pages))
		for pageNo := range t.store.pages {
			pageNos = append(pageNos, pageNo)
		}
		sort.Slice(pageNos, func(i, j int) bool { return pageNos[i] < pageNos[j] })
		for _, pageNo := range pageNos {
			if _, err := m.log.Append(pageNo, t.store.pages[pageNo]); err != nil {
				return m.failCommit(t, err)
			}
		}
		// the schema root lives in the header, not a data page; a moved
		// root rides along as a frame for page 0
		if t.root != t.beginRoot {
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], t.root)
			if _, err := m.log.Append(0, buf[:]); err != nil {
				return m.failCommit(t, err)
			}
		}
		if len(pageNos) > 0 || t.root != t.beginRoot {
			if err := m.log.Commit(); err != nil {
				return m.failCommit(t, err)
			}
		}
	}

	if err := t.store.flush(); err != nil {
		return m.failCommit(t, err)
	}
	// the root is published only after the pages behind it landed in
	// the base pager
	m.shared.Pager.SetSchemaRoot(t.root)
	if m.log == nil {
		if err := m.shared.Pager.Sync(); err != nil {
			return m.failCommit(t, err)
		}
	}

	t.state = StateNone
	m.current = nil
	m.shared.UnlockWriter()
	return nil
}

// failCommit backs out a half-done commit so the caller can retry or
// roll back cleanly.
func (m *Manager) failCommit(t *Txn, err error) error {
	t.state = StateActive
	if m.log != nil {
		m.log.Rollback()
	}
	return err
}

// Rollback discards the active transaction: the overlay is dropped, its
// fresh allocations are returned, and any log frames it wrote are
// truncated away.
func (m *Manager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.current
	if t == nil {
		return core.NewError(core.KindUsage, "cannot rollback - no transaction is active")
	}

	if m.log != nil {
		if err := m.log.Rollback(); err != nil {
			return err
		}
	}
	if err := t.store.discard(); err != nil {
		return err
	}

	t.state = StateNone
	m.current = nil
	m.shared.UnlockWriter()
	return nil
}

// Checkpoint folds the committed log into the main file and truncates
// it. Only valid between transactions.
func (m *Manager) Checkpoint() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return core.NewError(core.KindUsage, "cannot checkpoint during a transaction")
	}
	if m.log == nil {
		return nil
	}
	p := m.shared.Pager
	if err := m.log.Checkpoint(Apply(p)); err != nil {
		return err
	}
	return p.Sync()
}

// Apply adapts a pager into a log replay target, routing the header
// frame (page 0) to the schema root. Commit never syncs the main file's
// header, so replayed frames can land past the last synced page count;
// the pager is grown to take them.
func Apply(p *pager.Pager) func(pageNo uint32, payload []byte) error {
	return func(pageNo uint32, payload []byte) error {
		if pageNo == 0 {
			if len(payload) != 4 {
				return core.NewError(core.KindCorrupt, "malformed header frame")
			}
			p.SetSchemaRoot(binary.BigEndian.Uint32(payload))
			return nil
		}
		p.Grow(pageNo)
		return p.Write(pageNo, payload)
	}
}
