// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package profdb holds types to retrieve and store register profiles
// from a MySQL database.
//
// Profiles are stored in the table:
//
//	profiles(name, port_a, port_b, duty, datetime)
//
// A name may have several entries: the most recent one wins.
package profdb // import "github.com/go-lpc/spipwm/profdb"

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-lpc/spipwm/regfile"
	"github.com/go-lpc/spipwm/spi"
	"github.com/go-sql-driver/mysql"
)

var (
	host = "localhost"
	usr  = "username"
	pwd  = "s3cr3t"

	drvName = "mysql"
)

// ErrNoProfile is returned when a requested profile does not exist.
var ErrNoProfile = errors.New("profdb: no such profile")

const timeout = 5 * time.Second

// Profile is a named set of register values.
type Profile struct {
	Name string
	Regs regfile.Snapshot
	Time time.Time
}

// Transactions returns the write transactions loading the profile.
func (p Profile) Transactions() []spi.Transaction {
	return p.Regs.Transactions()
}

func (p Profile) String() string {
	return fmt.Sprintf("%s: %v", p.Name, p.Regs)
}

// DB exposes convenience methods to retrieve and store register profiles.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the profile database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("profdb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(dbname string) string {
	cfg := mysql.NewConfig()
	cfg.User = usr
	cfg.Passwd = pwd
	cfg.Net = "tcp"
	cfg.Addr = host
	cfg.DBName = dbname
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("profdb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Profile returns the most recent profile named name.
func (db *DB) Profile(ctx context.Context, name string) (Profile, error) {
	return db.profile(
		ctx, name,
		`SELECT name, port_a, port_b, duty, datetime FROM profiles
		WHERE name=? ORDER BY datetime DESC LIMIT 1`,
		name,
	)
}

// LastProfile returns the most recently stored profile.
func (db *DB) LastProfile(ctx context.Context) (Profile, error) {
	return db.profile(
		ctx, "last",
		`SELECT name, port_a, port_b, duty, datetime FROM profiles
		ORDER BY datetime DESC LIMIT 1`,
	)
}

func (db *DB) profile(ctx context.Context, name, query string, args ...interface{}) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var p Profile
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return p, fmt.Errorf("profdb: could not query profile %q: %w", name, err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		err = rows.Scan(&p.Name, &p.Regs.PortA, &p.Regs.PortB, &p.Regs.Duty, &p.Time)
		if err != nil {
			return p, fmt.Errorf("profdb: could not get profile %q values: %w", name, err)
		}
		found = true
	}

	if err := rows.Err(); err != nil {
		return p, fmt.Errorf("profdb: could not scan db for profile %q: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return p, fmt.Errorf("profdb: context error while retrieving profile %q: %w", name, err)
	}

	if !found {
		return p, fmt.Errorf("profdb: could not find profile %q: %w", name, ErrNoProfile)
	}

	return p, nil
}

// Names returns the sorted list of profile names.
func (db *DB) Names(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var names []string
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT DISTINCT name FROM profiles ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("profdb: could not query profile names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return nil, fmt.Errorf("profdb: could not get profile name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profdb: could not scan db for profile names: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("profdb: context error while retrieving profile names: %w", err)
	}

	return names, nil
}

// Save stores p. A zero p.Time is replaced by the current time.
func (db *DB) Save(ctx context.Context, p Profile) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if p.Name == "" {
		return fmt.Errorf("profdb: invalid empty profile name")
	}
	if p.Time.IsZero() {
		p.Time = time.Now().UTC()
	}

	_, err := db.db.ExecContext(
		ctx,
		"INSERT INTO profiles (name, port_a, port_b, duty, datetime) VALUES (?, ?, ?, ?, ?)",
		p.Name, p.Regs.PortA, p.Regs.PortB, p.Regs.Duty, p.Time,
	)
	if err != nil {
		return fmt.Errorf("profdb: could not save profile %q: %w", p.Name, err)
	}
	return nil
}
