// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb provides an in-memory database/sql driver serving
// canned rows, and logging the statements it executed.
package fakedb // import "github.com/go-lpc/spipwm/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
)

var session struct {
	mu   sync.Mutex
	rows Rows
	log  []Stmt
}

// Run runs f while the driver serves rows to every query.
// Runs are serialized.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.rows = rows
	session.log = nil

	return f(ctx)
}

// Executed returns the statements executed during the last Run.
func Executed() []Stmt {
	return append([]Stmt(nil), session.log...)
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

// Open returns a new connection to the database.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{SQL: query}, nil
}

func (c *Conn) Close() error {
	return nil
}

func (c *Conn) Begin() (driver.Tx, error) {
	return nil, errors.New("fakedb: transactions not supported")
}

// Stmt is a prepared statement, with the arguments of its last execution.
type Stmt struct {
	SQL  string
	Args []driver.Value
}

func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns -1: arguments are not checked.
func (stmt *Stmt) NumInput() int {
	return -1
}

func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	stmt.record(args)
	return driver.RowsAffected(1), nil
}

func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	stmt.record(args)
	rows := &Rows{
		Names:  session.rows.Names,
		Values: append([][]driver.Value(nil), session.rows.Values...),
	}
	return rows, nil
}

func (stmt *Stmt) record(args []driver.Value) {
	session.log = append(session.log, Stmt{
		SQL:  stmt.SQL,
		Args: append([]driver.Value(nil), args...),
	})
}

// Rows holds the column names and values served by the driver.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

func (rows *Rows) Columns() []string {
	return rows.Names
}

func (rows *Rows) Close() error {
	return nil
}

// Next populates dest with the next row, or returns io.EOF.
func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Rows   = (*Rows)(nil)
)
