package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"queryset_registry/internal/broker"
	"queryset_registry/internal/database"
	"queryset_registry/internal/repositories"
)

// fakeAuthority is an in-memory broker. A non-nil err makes every lookup
// indeterminate.
type fakeAuthority struct {
	mu     sync.Mutex
	tables map[string]map[string]bool
	err    error
	calls  int
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{tables: make(map[string]map[string]bool)}
}

func (f *fakeAuthority) addTable(table string, columns ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cols, ok := f.tables[table]
	if !ok {
		cols = make(map[string]bool)
		f.tables[table] = cols
	}
	for _, c := range columns {
		cols[c] = true
	}
}

func (f *fakeAuthority) dropTable(table string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tables, table)
}

func (f *fakeAuthority) dropColumn(table, column string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tables[table], column)
}

func (f *fakeAuthority) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeAuthority) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAuthority) TableExists(ctx context.Context, table string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.err != nil {
		return false, &broker.LookupError{Table: table, Err: f.err}
	}
	_, ok := f.tables[table]
	return ok, nil
}

func (f *fakeAuthority) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.err != nil {
		return false, &broker.LookupError{Table: table, Column: column, Err: f.err}
	}
	return f.tables[table][column], nil
}

type testEnv struct {
	store     repositories.Store
	authority *fakeAuthority
	svc       *QuerysetService
}

type envOption func(*envConfig)

type envConfig struct {
	concurrency    int
	validateOnRead bool
}

func withConcurrency(n int) envOption {
	return func(c *envConfig) { c.concurrency = n }
}

func withValidateOnRead() envOption {
	return func(c *envConfig) { c.validateOnRead = true }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{concurrency: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	store, err := repositories.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	log := zaptest.NewLogger(t)
	authority := newFakeAuthority()
	consistency := NewConsistencyService(store, authority, cfg.concurrency, log)

	return &testEnv{
		store:     store,
		authority: authority,
		svc:       NewQuerysetService(store, authority, consistency, cfg.validateOnRead, log),
	}
}

func columns(names ...string) []ColumnRef {
	refs := make([]ColumnRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, ColumnRef{Name: name})
	}
	return refs
}

// mustCreate registers the queryset's table and columns in the broker and
// creates it.
func (e *testEnv) mustCreate(t *testing.T, name, table string, cols ...string) {
	t.Helper()

	e.authority.addTable(table, cols...)
	_, err := e.svc.CreateQueryset(context.Background(), &CreateQuerysetRequest{
		Name:    name,
		Table:   table,
		Columns: columns(cols...),
	})
	require.NoError(t, err)
}

func manyColumns(n int) []string {
	names := make([]string, 0, n)
	for i := range n {
		names = append(names, fmt.Sprintf("col_%02d", i))
	}
	return names
}
