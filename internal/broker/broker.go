// Package broker answers existence questions about tables and columns held
// by the broker, the external data source that owns the live schema.
//
// An Authority reports (true, nil) when the object exists and (false, nil)
// when the broker says it does not. Any other outcome is an error wrapping
// ErrIndeterminate: the caller could not learn the answer and must not act
// as if the object were absent.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrIndeterminate = errors.New("broker could not determine existence")

type Authority interface {
	TableExists(ctx context.Context, table string) (bool, error)
	ColumnExists(ctx context.Context, table, column string) (bool, error)
}

// LookupError describes a failed existence lookup.
type LookupError struct {
	Table  string
	Column string
	Err    error
}

func (e *LookupError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("lookup of table %q: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("lookup of column %q on table %q: %v", e.Column, e.Table, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

func (e *LookupError) Is(target error) bool {
	return target == ErrIndeterminate
}

func indeterminate(table, column string, err error) error {
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		return err
	}
	return &LookupError{Table: table, Column: column, Err: err}
}

type guarded struct {
	inner   Authority
	timeout time.Duration
}

// Guard bounds every call to a with timeout and reports any failure,
// including the timeout itself, as indeterminate.
func Guard(a Authority, timeout time.Duration) Authority {
	return &guarded{inner: a, timeout: timeout}
}

func (g *guarded) TableExists(ctx context.Context, table string) (bool, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	exists, err := g.inner.TableExists(ctx, table)
	if err != nil {
		return false, indeterminate(table, "", err)
	}
	return exists, nil
}

func (g *guarded) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	exists, err := g.inner.ColumnExists(ctx, table, column)
	if err != nil {
		return false, indeterminate(table, column, err)
	}
	return exists, nil
}

func (g *guarded) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}
