package db

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/osfs"

	"github.com/zqlite/zqlite-go/btree"
	"github.com/zqlite/zqlite-go/cipher"
	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/exec"
	"github.com/zqlite/zqlite-go/jsonpath"
	"github.com/zqlite/zqlite-go/op"
	"github.com/zqlite/zqlite-go/pager"
	"github.com/zqlite/zqlite-go/plan"
	"github.com/zqlite/zqlite-go/sql"
	"github.com/zqlite/zqlite-go/txn"
	"github.com/zqlite/zqlite-go/wal"
)

// DefaultPrecision is the real-number precision used when rendering
// JSON values; negative means shortest representation.
const DefaultPrecision = -1

// Options configures Open.
type Options struct {
	// Password enables page encryption. Required for files created with
	// one, rejected for files created without.
	Password string
	// LockTimeout bounds how long writes wait for the writer lock.
	LockTimeout time.Duration
	// CacheBytes bounds the clean-page cache.
	CacheBytes int64
	// Filesystem overrides the backing filesystem; nil uses the OS.
	Filesystem billy.Filesystem
}

// Conn is one connection to a database file.
type Conn struct {
	fs   billy.Filesystem
	path string

	shared    *pager.Shared
	manager   *txn.Manager
	pagerOpts pager.Options

	interrupted atomic.Bool

	mu         sync.Mutex
	precision  int
	lastCode   int
	lastMsg    string
	lastInsert int64
	changes    int64
	closed     bool
}

// Open opens or creates the database at path. Connections to the same
// path within the process share the underlying pager.
func Open(path string, opts Options) (*Conn, error) {
	fs := opts.Filesystem
	key := path
	if fs == nil {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, core.Errorf(core.KindCantOpen, "resolve %s: %v", path, err)
		}
		fs = osfs.New(filepath.Dir(abs))
		path = filepath.Base(abs)
		key = abs
	}

	pagerOpts := pager.Options{CacheBytes: opts.CacheBytes}
	if opts.Password != "" {
		password := opts.Password
		pagerOpts.NewCipher = func(salt [16]byte) (pager.Cipher, error) {
			return cipher.New(password, salt[:])
		}
	}

	shared, err := pager.Acquire(pager.ResolveKey(key), func() (*pager.Pager, error) {
		return pager.Open(fs, path, pagerOpts)
	})
	if err != nil {
		return nil, err
	}

	conn := &Conn{
		fs:        fs,
		path:      path,
		shared:    shared,
		manager:   txn.NewManager(shared, opts.LockTimeout),
		pagerOpts: pagerOpts,
		precision: DefaultPrecision,
	}
	if err := conn.bootstrap(); err != nil {
		shared.Release()
		return nil, err
	}
	return conn, nil
}

// OpenMemory opens a private in-memory database.
func OpenMemory() (*Conn, error) {
	fs := memfs.New()
	p, err := pager.Open(fs, "memory.db", pager.Options{})
	if err != nil {
		return nil, err
	}
	shared := pager.AcquireExclusive(p)
	conn := &Conn{
		fs:        fs,
		path:      "memory.db",
		shared:    shared,
		manager:   txn.NewManager(shared, 0),
		precision: DefaultPrecision,
	}
	if err := conn.bootstrap(); err != nil {
		shared.Release()
		return nil, err
	}
	return conn, nil
}

// bootstrap creates the catalog on first open and recovers a leftover
// write-ahead log.
func (c *Conn) bootstrap() error {
	p := c.shared.Pager

	if p.Flag(pager.FlagWAL) {
		log, err := wal.Open(p.Filesystem(), c.walPath())
		if err != nil {
			return err
		}
		// fold whatever the last session committed but never checkpointed
		if err := log.Checkpoint(txn.Apply(p)); err != nil {
			log.Close()
			return err
		}
		if err := p.Sync(); err != nil {
			log.Close()
			return err
		}
		c.manager.SetWAL(log)
	}

	if p.SchemaRoot() != 0 {
		return nil
	}
	if err := c.shared.LockWriter(time.Second); err != nil {
		return err
	}
	defer c.shared.UnlockWriter()
	if p.SchemaRoot() != 0 { // lost the bootstrap race
		return nil
	}
	catalog, err := op.CreateCatalog(p)
	if err != nil {
		return err
	}
	p.SetSchemaRoot(catalog.Root())
	return p.Sync()
}

func (c *Conn) walPath() string {
	return c.shared.Pager.Path() + "-wal"
}

// Execute runs one statement, discarding any rows it produces.
func (c *Conn) Execute(query string, args ...core.Value) error {
	_, err := c.Query(query, args...)
	return err
}

// Query runs one statement and materializes its rows.
func (c *Conn) Query(query string, args ...core.Value) (*Result, error) {
	result, err := c.run(query, args)
	return result, c.fail(err)
}

func (c *Conn) run(query string, args []core.Value) (*Result, error) {
	if c.isClosed() {
		return nil, core.NewError(core.KindUsage, "connection is closed")
	}
	c.interrupted.Store(false)

	stmt, err := sql.NewParser(query).Parse()
	if err != nil {
		return nil, err
	}

	switch stmt.Type() {
	case sql.BeginStatementType:
		return emptyResult(c.getPrecision()), c.begin()
	case sql.CommitStatementType:
		return emptyResult(c.getPrecision()), c.manager.Commit()
	case sql.RollbackStatementType:
		return emptyResult(c.getPrecision()), c.manager.Rollback()
	case sql.VacuumStatementType:
		return emptyResult(c.getPrecision()), c.Vacuum()
	}

	isQuery := stmt.Type() == sql.SelectStatementType

	var store btree.Store
	var implicit bool
	if isQuery {
		store = c.currentStore()
	} else {
		current, started, err := c.manager.Ensure()
		if err != nil {
			return nil, err
		}
		store = current.Store()
		implicit = started
	}
	rollback := func() {
		if implicit {
			c.manager.Rollback()
		}
	}

	catalog, err := op.OpenCatalog(store, c.schemaRoot())
	if err != nil {
		rollback()
		return nil, err
	}
	compiled, err := plan.Compile(stmt, catalog)
	if err != nil {
		rollback()
		return nil, err
	}

	env := &exec.Env{Catalog: catalog, Store: store, Interrupted: c.interrupted.Load}
	cursor, err := exec.Run(compiled, args, env)
	if err != nil {
		rollback()
		return nil, err
	}

	result := &Result{cols: cursor.Columns(), precision: c.getPrecision()}
	for {
		row, err := cursor.Next()
		if err == exec.Done {
			break
		}
		if err != nil {
			rollback()
			return nil, err
		}
		result.rows = append(result.rows, row)
	}

	if !isQuery {
		c.recordMutation(cursor, compiled)
		if current := c.manager.Current(); current != nil {
			current.SetRoot(catalog.Root())
		}
		if implicit {
			if err := c.manager.Commit(); err != nil {
				c.manager.Rollback()
				return nil, err
			}
		}
	}
	return result, nil
}

func (c *Conn) recordMutation(cursor *exec.Cursor, compiled *plan.Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = cursor.Changes()
	if compiled.Kind == plan.InsertPlanKind && cursor.Changes() > 0 {
		c.lastInsert = cursor.LastInsertRowid()
	}
}

// currentStore is the active transaction's overlay, or the pager's
// committed state outside a transaction.
func (c *Conn) currentStore() btree.Store {
	if current := c.manager.Current(); current != nil {
		return current.Store()
	}
	return c.shared.Pager
}

// schemaRoot resolves the catalog root: the transaction's pending root
// inside one, the last committed root otherwise.
func (c *Conn) schemaRoot() uint32 {
	if current := c.manager.Current(); current != nil {
		return current.Root()
	}
	return c.shared.Pager.SchemaRoot()
}

// Schema returns every schema object, tables and indexes alike, in
// name order.
func (c *Conn) Schema() ([]core.Table, error) {
	if c.isClosed() {
		return nil, c.fail(core.NewError(core.KindUsage, "connection is closed"))
	}
	catalog, err := op.OpenCatalog(c.currentStore(), c.schemaRoot())
	if err != nil {
		return nil, c.fail(err)
	}
	objects, err := catalog.List()
	return objects, c.fail(err)
}

// Begin starts an explicit transaction.
func (c *Conn) Begin() error {
	return c.fail(c.begin())
}

func (c *Conn) begin() error {
	_, err := c.manager.Begin(true)
	return err
}

// Commit commits the current transaction.
func (c *Conn) Commit() error {
	return c.fail(c.manager.Commit())
}

// Rollback discards the current transaction.
func (c *Conn) Rollback() error {
	return c.fail(c.manager.Rollback())
}

// Interrupt flags the connection; the running statement fails with an
// interrupt error at its next row boundary.
func (c *Conn) Interrupt() {
	c.interrupted.Store(true)
}

// LastInsertRowid returns the rowid of the most recent successful
// insert on this connection.
func (c *Conn) LastInsertRowid() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInsert
}

// Changes returns the number of rows the last statement touched.
func (c *Conn) Changes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changes
}

// ErrCode returns the numeric code of the last failing call, 0 after a
// success.
func (c *Conn) ErrCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCode
}

// ErrMsg returns the message of the last failing call.
func (c *Conn) ErrMsg() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMsg
}

// fail records err as the connection's last error and passes it
// through; a nil err clears the record.
func (c *Conn) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.lastCode = 0
		c.lastMsg = ""
		return nil
	}
	c.lastCode = core.KindOf(err).Number()
	c.lastMsg = err.Error()
	return err
}

// SetPrecision sets the real-number precision used when this connection
// renders values, JSON extraction included.
func (c *Conn) SetPrecision(precision int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.precision = precision
}

func (c *Conn) getPrecision() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.precision
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// EnableWAL switches the connection's writes to write-ahead logging.
func (c *Conn) EnableWAL() error {
	if c.manager.Current() != nil {
		return c.fail(core.NewError(core.KindUsage, "cannot change journaling during a transaction"))
	}
	if c.manager.WAL() != nil {
		return nil
	}
	log, err := wal.Open(c.shared.Pager.Filesystem(), c.walPath())
	if err != nil {
		return c.fail(err)
	}
	c.shared.Pager.SetFlag(pager.FlagWAL, true)
	if err := c.shared.Pager.Sync(); err != nil {
		log.Close()
		return c.fail(err)
	}
	c.manager.SetWAL(log)
	return c.fail(nil)
}

// CreateIndex creates a non-unique index on one column.
func (c *Conn) CreateIndex(table, column string) error {
	return c.Execute("CREATE INDEX idx_" + table + "_" + column + " ON " + table + " (" + column + ")")
}

// JSONExtract returns the value a path addresses inside a JSON
// document, rendered with the connection's precision.
func (c *Conn) JSONExtract(doc, path string) (string, error) {
	value, err := jsonpath.Extract(doc, path)
	if err != nil {
		return "", c.fail(err)
	}
	return value.Display(c.getPrecision()), c.fail(nil)
}

// JSONSet returns the document with the addressed value replaced,
// creating missing containers along the path.
func (c *Conn) JSONSet(doc, path string, value core.Value) (string, error) {
	out, err := jsonpath.Set(doc, path, value)
	return out, c.fail(err)
}

// JSONType names the value a path addresses.
func (c *Conn) JSONType(doc, path string) (string, error) {
	typ, err := jsonpath.TypeOf(doc, path)
	return typ, c.fail(err)
}

// Close releases the connection. Closing with an open transaction is a
// usage error; roll back or commit first.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if c.manager.Current() != nil {
		return c.fail(core.NewError(core.KindUsage, "cannot close with an open transaction"))
	}
	// a failed checkpoint still closes the connection; the log is kept
	// for the next open to replay, but the caller learns the main file
	// was not folded
	var checkpointErr error
	if log := c.manager.WAL(); log != nil {
		checkpointErr = c.manager.Checkpoint()
		log.Close()
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if err := c.shared.Release(); err != nil {
		return c.fail(err)
	}
	return c.fail(checkpointErr)
}
