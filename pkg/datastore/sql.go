package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite"
)

const (
	defaultMaxOpenConns = 10
	defaultMaxIdleConns = 2
	defaultConnLifetime = 5 * time.Minute
	defaultPingTimeout  = 5 * time.Second

	postgresSizeQuery = `SELECT pg_database_size(current_database())`
	sqliteSizeQuery   = `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`
)

// PoolConfig contains connection pool settings applied to every opened handle.
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
	PingTimeout  time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are given.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns: defaultMaxOpenConns,
		MaxIdleConns: defaultMaxIdleConns,
		ConnLifetime: defaultConnLifetime,
		PingTimeout:  defaultPingTimeout,
	}
}

// SQLOpener opens database/sql backed handles, choosing the driver from the URL.
type SQLOpener struct {
	Pool PoolConfig
}

// NewSQLOpener creates an opener with the given pool settings.
func NewSQLOpener(pool PoolConfig) *SQLOpener {
	defaults := DefaultPoolConfig()
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = defaults.MaxOpenConns
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = defaults.MaxIdleConns
	}
	if pool.ConnLifetime <= 0 {
		pool.ConnLifetime = defaults.ConnLifetime
	}
	if pool.PingTimeout <= 0 {
		pool.PingTimeout = defaults.PingTimeout
	}
	return &SQLOpener{Pool: pool}
}

// ResolveDriver maps a connection URL to a registered driver name and DSN.
func ResolveDriver(rawURL string) (Dialect, string, error) {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, rawURL, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return DialectSQLite, rawURL[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "file:"):
		return DialectSQLite, rawURL, nil
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return DialectSQLite, rawURL, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnknownScheme, Descriptor{URL: rawURL}.Redacted())
}

// Open connects to the backend and verifies it with a ping.
func (o *SQLOpener) Open(ctx context.Context, descriptor Descriptor) (Handle, error) {
	dialect, dsn, err := ResolveDriver(descriptor.URL)
	if err != nil {
		return nil, &ConnectError{Index: descriptor.Index, Err: err}
	}

	database, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, &ConnectError{Index: descriptor.Index, Err: fmt.Errorf("open database: %w", err)}
	}

	if dialect == DialectSQLite {
		// SQLite serializes writers; a single connection keeps pragmas consistent.
		database.SetMaxOpenConns(1)
	} else {
		database.SetMaxOpenConns(o.Pool.MaxOpenConns)
		database.SetMaxIdleConns(o.Pool.MaxIdleConns)
		database.SetConnMaxLifetime(o.Pool.ConnLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.Pool.PingTimeout)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, &ConnectError{Index: descriptor.Index, Err: fmt.Errorf("ping database: %w", err)}
	}

	if dialect == DialectSQLite {
		for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA journal_mode = WAL"} {
			if _, err := database.ExecContext(ctx, pragma); err != nil {
				_ = database.Close()
				return nil, &ConnectError{Index: descriptor.Index, Err: fmt.Errorf("%s: %w", pragma, err)}
			}
		}
	}

	return &SQLHandle{db: database, dialect: dialect}, nil
}

// SQLHandle is a Handle over a database/sql pool.
type SQLHandle struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLHandle wraps an already opened pool.
func NewSQLHandle(database *sql.DB, dialect Dialect) *SQLHandle {
	return &SQLHandle{db: database, dialect: dialect}
}

func (h *SQLHandle) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return h.db.ExecContext(ctx, Rebind(h.dialect, query), args...)
}

func (h *SQLHandle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return h.db.QueryContext(ctx, Rebind(h.dialect, query), args...)
}

func (h *SQLHandle) PingContext(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func (h *SQLHandle) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return h.db.BeginTx(ctx, opts)
}

func (h *SQLHandle) Stats() sql.DBStats {
	return h.db.Stats()
}

func (h *SQLHandle) Dialect() Dialect {
	return h.dialect
}

func (h *SQLHandle) Close() error {
	return h.db.Close()
}

// SizeBytes runs the backend's native "total occupied storage" query.
func (h *SQLHandle) SizeBytes(ctx context.Context) (int64, error) {
	query := sqliteSizeQuery
	if h.dialect == DialectPostgres {
		query = postgresSizeQuery
	}

	var size int64
	if err := h.db.QueryRowContext(ctx, query).Scan(&size); err != nil {
		return 0, fmt.Errorf("size query: %w", err)
	}
	return size, nil
}

// Rebind rewrites '?' placeholders into the dialect's native form.
// Question marks inside single-quoted literals are left alone. Double-quoted
// identifiers, "--" comments and dollar-quoted bodies are not recognized, so
// a '?' inside them is rewritten too; queries passed here must avoid them.
func Rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}

	var (
		builder  strings.Builder
		position int
		inQuote  bool
	)
	builder.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		char := query[i]
		switch {
		case char == '\'':
			inQuote = !inQuote
			builder.WriteByte(char)
		case char == '?' && !inQuote:
			position++
			builder.WriteByte('$')
			builder.WriteString(strconv.Itoa(position))
		default:
			builder.WriteByte(char)
		}
	}
	return builder.String()
}
