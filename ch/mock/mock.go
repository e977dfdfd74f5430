// Package mock provides an in-memory ch.Conn test double.
package mock

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/chutils/chutils/ch"
)

// Call records a single statement or query issued against the mock.
type Call struct {
	Query string
	Args  []any
}

// Conn is a scriptable ch.Conn implementation. Statement and query behavior
// is customized through the ExecFn and QueryFn hooks; every call is recorded
// for later inspection.
type Conn struct {
	ExecFn  func(query string, args ...any) error
	QueryFn func(query string, args ...any) (ch.Rows, error)

	Databases []string
	Tables    map[string][]string

	mu      sync.Mutex
	execed  []Call
	queried []Call
	failErr error
	closed  bool
}

var _ ch.Conn = (*Conn)(nil)

// New creates a new mock connection.
func New() *Conn {
	return &Conn{Tables: map[string][]string{}}
}

// SetFailError makes every subsequent call return err.
func (c *Conn) SetFailError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failErr = err
}

// Execed returns all recorded Exec calls.
func (c *Conn) Execed() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.execed...)
}

// Queried returns all recorded Query and QueryRow calls.
func (c *Conn) Queried() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.queried...)
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Exec(_ context.Context, query string, args ...any) error {
	c.mu.Lock()
	c.execed = append(c.execed, Call{Query: query, Args: args})
	failErr := c.failErr
	c.mu.Unlock()

	if failErr != nil {
		return failErr
	}
	if c.ExecFn != nil {
		return c.ExecFn(query, args...)
	}
	return nil
}

func (c *Conn) Query(_ context.Context, query string, args ...any) (ch.Rows, error) {
	c.mu.Lock()
	c.queried = append(c.queried, Call{Query: query, Args: args})
	failErr := c.failErr
	c.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}
	if c.QueryFn != nil {
		return c.QueryFn(query, args...)
	}
	return NewRows(), nil
}

func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) ch.Row {
	rows, err := c.Query(ctx, query, args...)
	if err != nil {
		return &row{err: err}
	}
	return &row{rows: rows}
}

func (c *Conn) ListDatabases(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return nil, c.failErr
	}
	return append([]string(nil), c.Databases...), nil
}

func (c *Conn) ListTables(_ context.Context, database string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return nil, c.failErr
	}
	return append([]string(nil), c.Tables[database]...), nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Rows is a static ch.Rows implementation over in-memory values.
type Rows struct {
	rows [][]any
	pos  int
	err  error
}

var _ ch.Rows = (*Rows)(nil)

// NewRows creates a result set from rows of column values.
func NewRows(rows ...[]any) *Rows {
	return &Rows{rows: rows}
}

func (r *Rows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

// Scan copies the current row's values into dest pointers, converting between
// compatible types.
func (r *Rows) Scan(dest ...any) error {
	if r.pos == 0 || r.pos > len(r.rows) {
		return errors.New("Scan called without Next")
	}
	vals := r.rows[r.pos-1]
	if len(dest) != len(vals) {
		return fmt.Errorf("expected %d scan destinations, got %d", len(vals), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("scan destination %d is not a valid pointer", i)
		}
		sv := reflect.ValueOf(vals[i])
		if !sv.Type().ConvertibleTo(dv.Elem().Type()) {
			return fmt.Errorf("cannot scan %T into %T", vals[i], d)
		}
		dv.Elem().Set(sv.Convert(dv.Elem().Type()))
	}
	return nil
}

func (r *Rows) Err() error { return r.err }

func (r *Rows) Close() error { return nil }

// row adapts a Rows result to the single-row ch.Row interface.
type row struct {
	rows ch.Rows
	err  error
}

var _ ch.Row = (*row)(nil)

func (r *row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer func() { _ = r.rows.Close() }()
	if !r.rows.Next() {
		return errors.New("no rows in result set")
	}
	return r.rows.Scan(dest...)
}

func (r *row) Err() error { return r.err }
