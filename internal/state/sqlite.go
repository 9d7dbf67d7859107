package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/leapstack-labs/leaptable/internal/dag"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// DefaultColumnWidth is the width assigned to new columns.
const DefaultColumnWidth = 100

// SQLiteStore implements core.Store using SQLite.
type SQLiteStore struct {
	db           *sql.DB
	path         string
	logger       *slog.Logger
	defaultWidth int64
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger used for cascade and revalidation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaultColumnWidth sets the width assigned to new columns.
func WithDefaultColumnWidth(width int64) Option {
	return func(s *SQLiteStore) {
		if width > 0 {
			s.defaultWidth = width
		}
	}
}

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore(opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		logger:       slog.Default(),
		defaultWidth: DefaultColumnWidth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSQLiteStoreWithDB wraps an already opened database handle.
// Used by tests that drive the store through a mock driver.
func NewSQLiteStoreWithDB(db *sql.DB, opts ...Option) *SQLiteStore {
	s := NewSQLiteStore(opts...)
	s.db = db
	return s
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// An in-memory database lives only as long as its connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// InitSchema initializes the database schema by running migrations.
func (s *SQLiteStore) InitSchema() error {
	if s.db == nil {
		return core.ErrDatabaseNotOpened
	}
	if err := s.Migrate(); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, committing on success and
// rolling back on any error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.db == nil {
		return core.ErrDatabaseNotOpened
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// reader returns the handle used by read-only operations.
func (s *SQLiteStore) reader() (querier, error) {
	if s.db == nil {
		return nil, core.ErrDatabaseNotOpened
	}
	return s.db, nil
}

// loadGraph reads the complete inheritance graph.
func loadGraph(ctx context.Context, q querier) (*dag.Graph, error) {
	g := dag.NewGraph()

	nodes, err := q.QueryContext(ctx, `SELECT oid, name FROM meta_table`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}
	for nodes.Next() {
		var oid int64
		var name string
		if err := nodes.Scan(&oid, &name); err != nil {
			nodes.Close()
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		g.AddNode(oid, name)
	}
	if err := nodes.Err(); err != nil {
		nodes.Close()
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}
	nodes.Close()

	edges, err := q.QueryContext(ctx,
		`SELECT master_oid, inheritor_oid FROM meta_table_master ORDER BY inheritor_oid, ordering`)
	if err != nil {
		return nil, fmt.Errorf("failed to load masters: %w", err)
	}
	defer edges.Close()

	for edges.Next() {
		var master, inheritor int64
		if err := edges.Scan(&master, &inheritor); err != nil {
			return nil, fmt.Errorf("failed to scan master: %w", err)
		}
		if err := g.AddEdge(master, inheritor); err != nil {
			return nil, fmt.Errorf("corrupt inheritance graph: %w", err)
		}
	}
	if err := edges.Err(); err != nil {
		return nil, fmt.Errorf("failed to load masters: %w", err)
	}
	if cyclic, path := g.HasCycle(); cyclic {
		return nil, fmt.Errorf("corrupt inheritance graph: cycle %v", path)
	}
	return g, nil
}

// scanInt64s collects a single integer column.
func scanInt64s(ctx context.Context, q querier, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// inClause returns "?, ?, ?" for n placeholders and the ids as args.
func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
