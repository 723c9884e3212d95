// Package database is the persistence boundary of the presence server.
//
// Only durable data goes through it: the layer directory and each account's
// current layer. Room occupancy and connections are in memory and never
// touch the store.
//
// Callers see SurrealQL plus a variable map. Query hands back the raw
// per-statement results, QueryOne the first record of the first statement,
// and Execute discards results for mutations.
//
// # Atomic Writes
//
// Moving the default flag between layers must never leave zero or two
// defaults visible, so those writes are collected in an AtomicBatch and sent
// as one BEGIN/COMMIT request. Each statement gets its own variable prefix.
//
// # Errors
//
// Failures wrap one of the sentinels below:
//
//	if errors.Is(err, database.ErrDuplicate) {
//	    // layer name already taken
//	}
package database

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrDuplicate  = errors.New("duplicate record")
	ErrConnection = errors.New("database connection error")
	ErrQuery      = errors.New("query error")
)

// Database is implemented by SurrealDB and by in-memory doubles in tests.
type Database interface {
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error

	Query(ctx context.Context, query string, vars map[string]interface{}) ([]interface{}, error)
	QueryOne(ctx context.Context, query string, vars map[string]interface{}) (interface{}, error)
	Execute(ctx context.Context, query string, vars map[string]interface{}) error
}

// Config locates the store; it is filled from DatabaseConfig at startup.
type Config struct {
	Host      string
	Port      string
	User      string
	Password  string
	Namespace string
	Database  string
}
