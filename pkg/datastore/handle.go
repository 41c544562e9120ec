package datastore

import (
	"context"
	"database/sql"
)

// Dialect names the SQL flavor behind a handle.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Handle is the forwarding surface shared by a single backend connection
// and the router's dispatch proxy. Queries use '?' placeholders.
type Handle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PingContext(ctx context.Context) error
	Dialect() Dialect
	Close() error
}

// Sizer reports the occupied storage of the backend behind a handle.
type Sizer interface {
	SizeBytes(ctx context.Context) (int64, error)
}

// Transactor is implemented by handles that can start transactions.
type Transactor interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Statser is implemented by handles backed by a connection pool.
type Statser interface {
	Stats() sql.DBStats
}

// Opener creates handles. Callers are expected to cache what it returns.
type Opener interface {
	Open(ctx context.Context, descriptor Descriptor) (Handle, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, descriptor Descriptor) (Handle, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, descriptor Descriptor) (Handle, error) {
	return f(ctx, descriptor)
}

// WithOnOpen wraps opener so hook runs on every freshly opened handle. A
// hook failure closes the handle and is reported as a ConnectError.
func WithOnOpen(opener Opener, hook func(ctx context.Context, handle Handle) error) Opener {
	return OpenerFunc(func(ctx context.Context, descriptor Descriptor) (Handle, error) {
		handle, err := opener.Open(ctx, descriptor)
		if err != nil {
			return nil, err
		}
		if err := hook(ctx, handle); err != nil {
			_ = handle.Close()
			return nil, &ConnectError{Index: descriptor.Index, Err: err}
		}
		return handle, nil
	})
}
