// Package testutil provides a stub database/sql driver that emulates the
// snapshot state table used by the postgres store, so the store can be
// exercised without a running server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
)

var stubSeq int64

// StateConn emulates a single-table Postgres backend holding bucket/payload
// snapshot rows. Failure toggles let tests force errors at each stage.
type StateConn struct {
	Execs      []string
	Buckets    map[string][]byte
	FailPing   bool
	FailBegin  bool
	FailExec   bool
	FailCommit bool
	RowsErr    error
}

// NewStateDB registers a fresh stub driver and returns a sql.DB bound to it
// along with the connection for seeding and inspection.
func NewStateDB() (*sql.DB, *StateConn) {
	conn := &StateConn{Buckets: make(map[string][]byte)}
	name := fmt.Sprintf("forestpg%d", atomic.AddInt64(&stubSeq, 1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// SeedBucket stores v as the JSON payload for bucket, as a committed snapshot
// from an earlier run would.
func (c *StateConn) SeedBucket(bucket string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	c.Buckets[bucket] = data
}

type stubDriver struct {
	conn *StateConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StateConn) Prepare(string) (driver.Stmt, error) {
	return nil, fmt.Errorf("not implemented")
}

// Close implements driver.Conn.
func (c *StateConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StateConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StateConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StateConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext. It understands the two
// statements the store issues: the state table DDL and the bucket upsert.
func (c *StateConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO STATE") {
		return driver.RowsAffected(0), nil
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("upsert expects bucket and payload, got %d args", len(args))
	}
	bucket, ok := args[0].Value.(string)
	if !ok {
		return nil, fmt.Errorf("bucket is not a string: %T", args[0].Value)
	}
	payload, ok := args[1].Value.([]byte)
	if !ok {
		return nil, fmt.Errorf("payload is not bytes: %T", args[1].Value)
	}
	if c.Buckets == nil {
		c.Buckets = make(map[string][]byte)
	}
	c.Buckets[bucket] = append([]byte(nil), payload...)
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext for the snapshot select.
func (c *StateConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(strings.ToLower(query), "from state") {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	buckets := make([]string, 0, len(c.Buckets))
	for bucket := range c.Buckets {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)
	values := make([][]driver.Value, 0, len(buckets))
	for _, bucket := range buckets {
		values = append(values, []driver.Value{bucket, append([]byte(nil), c.Buckets[bucket]...)})
	}
	return &stubRows{
		cols: []string{"bucket", "payload"},
		rows: values,
		err:  c.RowsErr,
	}, nil
}

type stubTx struct {
	conn *StateConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
