package migrator_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	qt "github.com/frankban/quicktest"

	"github.com/apolondb/apolon/dbschema"
)

// memStore is the shared state behind one fake database: an ordered log of
// committed statements, the committed history rows and an optional failure
// trigger. Transactions buffer their writes and apply them on commit only.
type memStore struct {
	mu      sync.Mutex
	log     []string
	applied []string

	// failOn makes any statement containing the substring fail.
	failOn string
}

// Log returns the committed statements in execution order.
func (s *memStore) Log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

// Applied returns the committed history names in insertion order.
func (s *memStore) Applied() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.applied...)
}

func (s *memStore) FailOn(substr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn = substr
}

var (
	memStores    sync.Map
	registerOnce sync.Once
	storeSeq     int
	storeSeqMu   sync.Mutex
)

type memDriver struct{}

func (memDriver) Open(dsn string) (driver.Conn, error) {
	v, ok := memStores.Load(dsn)
	if !ok {
		return nil, fmt.Errorf("unknown fake store %q", dsn)
	}
	return &memConn{store: v.(*memStore)}, nil
}

// openFakeConn returns a dbschema.Conn backed by an in-memory store.
func openFakeConn(c *qt.C, store *memStore) dbschema.Conn {
	registerOnce.Do(func() {
		sql.Register("apolonmem", memDriver{})
	})

	storeSeqMu.Lock()
	storeSeq++
	name := fmt.Sprintf("store-%d", storeSeq)
	storeSeqMu.Unlock()

	memStores.Store(name, store)
	db, err := sql.Open("apolonmem", name)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = db.Close() })
	return &fakeConn{db: db}
}

// memConn is one fake connection. While a transaction is open its writes
// accumulate in tx and reach the store only on commit.
type memConn struct {
	store *memStore
	tx    *memTx
}

func (m *memConn) Prepare(string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepared statements not supported")
}

func (m *memConn) Close() error { return nil }

func (m *memConn) Begin() (driver.Tx, error) {
	return m.BeginTx(context.Background(), driver.TxOptions{})
}

func (m *memConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	m.tx = &memTx{conn: m}
	return m.tx, nil
}

func (m *memConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	m.store.mu.Lock()
	failOn := m.store.failOn
	m.store.mu.Unlock()
	if failOn != "" && strings.Contains(query, failOn) {
		return nil, fmt.Errorf("injected failure for %q", failOn)
	}

	switch {
	case strings.Contains(query, "INSERT INTO") && isHistoryQuery(query):
		m.apply(func(s *memStore) {
			s.applied = append(s.applied, args[0].Value.(string))
		})
	case strings.Contains(query, "DELETE FROM") && isHistoryQuery(query):
		name := args[0].Value.(string)
		m.apply(func(s *memStore) {
			for i, n := range s.applied {
				if n == name {
					s.applied = append(s.applied[:i], s.applied[i+1:]...)
					break
				}
			}
		})
	default:
		m.apply(func(s *memStore) {
			s.log = append(s.log, query)
		})
	}
	return driver.RowsAffected(1), nil
}

func (m *memConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(query, "SELECT name") || !isHistoryQuery(query) {
		return nil, fmt.Errorf("unsupported query %q", query)
	}
	names := m.applied()
	sort.Strings(names)
	return &memRows{names: names}, nil
}

// apply runs a state mutation, buffered when a transaction is open.
func (m *memConn) apply(fn func(*memStore)) {
	if m.tx != nil {
		m.tx.ops = append(m.tx.ops, fn)
		return
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	fn(m.store)
}

// applied returns the history including uncommitted rows of this
// connection's transaction, mirroring read-your-writes inside a tx.
func (m *memConn) applied() []string {
	m.store.mu.Lock()
	names := append([]string(nil), m.store.applied...)
	m.store.mu.Unlock()
	if m.tx != nil {
		shadow := &memStore{applied: names}
		for _, fn := range m.tx.ops {
			fn(shadow)
		}
		names = shadow.applied
	}
	return names
}

func isHistoryQuery(query string) bool {
	return strings.Contains(query, "__apolon_migrations")
}

type memTx struct {
	conn *memConn
	ops  []func(*memStore)
}

func (t *memTx) Commit() error {
	t.conn.store.mu.Lock()
	for _, fn := range t.ops {
		fn(t.conn.store)
	}
	t.conn.store.mu.Unlock()
	t.conn.tx = nil
	return nil
}

func (t *memTx) Rollback() error {
	t.conn.tx = nil
	return nil
}

type memRows struct {
	names []string
	pos   int
}

func (r *memRows) Columns() []string { return []string{"name"} }
func (r *memRows) Close() error      { return nil }

func (r *memRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.names) {
		return io.EOF
	}
	dest[0] = r.names[r.pos]
	r.pos++
	return nil
}

// fakeConn adapts a *sql.DB over the fake driver to dbschema.Conn.
type fakeConn struct {
	db *sql.DB
}

func (f *fakeConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return f.db.ExecContext(ctx, query, args...)
}

func (f *fakeConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return f.db.QueryContext(ctx, query, args...)
}

func (f *fakeConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return f.db.QueryRowContext(ctx, query, args...)
}

func (f *fakeConn) Begin(ctx context.Context) (dbschema.Tx, error) {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &fakeTx{tx: tx}, nil
}

func (f *fakeConn) Close() error { return f.db.Close() }

type fakeTx struct {
	tx *sql.Tx
}

func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *fakeTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *fakeTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *fakeTx) Commit() error   { return t.tx.Commit() }
func (t *fakeTx) Rollback() error { return t.tx.Rollback() }
