// Package engine provides the query/mutation engine over the table store.
// It serializes structural mutations, streams query results lazily and
// broadcasts change notifications after every successful mutation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/leapstack-labs/leaptable/internal/notifier"
	"github.com/leapstack-labs/leaptable/internal/state"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// Engine executes actions and queries against a store.
//
// Mutations take the exclusive lock; a query stream holds the shared lock
// from its first item until the consumer stops ranging over it. Consumers
// must not call the engine from inside a range loop over a stream. A
// mutation deadlocks at once, and a nested query deadlocks as soon as a
// mutation from another goroutine is waiting, because the shared lock is
// not reentrant. Collect the outer stream first when per-item lookups are
// needed.
type Engine struct {
	store    core.Store
	notifier *notifier.Notifier
	logger   *slog.Logger
	validate *validator.Validate

	mu sync.RWMutex
}

// Config holds engine configuration.
type Config struct {
	// DatabasePath is the path to the SQLite database (empty for in-memory).
	DatabasePath string
	// DefaultColumnWidth is the width of newly created columns (0 uses the store default).
	DefaultColumnWidth int64
	// Logger is the structured logger (optional, uses slog.Default if nil)
	Logger *slog.Logger
}

// New opens the store at cfg.DatabasePath, applies migrations and returns an engine.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	path := cfg.DatabasePath
	if path == "" {
		path = ":memory:"
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	logger.Debug("initializing engine", "database_path", path)

	store := state.NewSQLiteStore(
		state.WithLogger(logger),
		state.WithDefaultColumnWidth(cfg.DefaultColumnWidth),
	)
	if err := store.Open(path); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}

	return NewWithStore(store, logger), nil
}

// NewWithStore wraps an already opened and migrated store.
func NewWithStore(store core.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		notifier: notifier.New(),
		logger:   logger,
		validate: newValidator(),
	}
}

// Close releases the store.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

// Subscribe returns a channel receiving the changes of every successful mutation.
// The caller must call Unsubscribe when done.
func (e *Engine) Subscribe() chan core.Change {
	return e.notifier.Subscribe()
}

// Unsubscribe stops delivery to ch and closes it.
func (e *Engine) Unsubscribe(ch chan core.Change) {
	e.notifier.Unsubscribe(ch)
}

// changeSet collects the notifications of one mutation, dropping duplicates.
type changeSet struct {
	changes []core.Change
	seen    map[core.Change]struct{}
}

func (cs *changeSet) add(kind core.ChangeKind, tableOID, rowOID int64) {
	c := core.Change{Kind: kind, TableOID: tableOID, RowOID: rowOID}
	if cs.seen == nil {
		cs.seen = make(map[core.Change]struct{})
	}
	if _, ok := cs.seen[c]; ok {
		return
	}
	cs.seen[c] = struct{}{}
	cs.changes = append(cs.changes, c)
}

func (cs *changeSet) list(kind core.TableKind) {
	if kind == core.KindObjectType {
		cs.add(core.ChangeObjectTypeList, 0, 0)
		return
	}
	cs.add(core.ChangeTableList, 0, 0)
}

func (cs *changeSet) deep(tableOIDs ...int64) {
	for _, t := range tableOIDs {
		cs.add(core.ChangeTableDataDeep, t, 0)
	}
}

func (cs *changeSet) shallow(tableOIDs ...int64) {
	for _, t := range tableOIDs {
		cs.add(core.ChangeTableDataShallow, t, 0)
	}
}

func (cs *changeSet) row(tableOID, rowOID int64) {
	cs.add(core.ChangeTableRow, tableOID, rowOID)
}

// mutate runs fn under the exclusive lock. On success the collected
// changes are stamped with a request id and broadcast.
func (e *Engine) mutate(action string, fn func(cs *changeSet) error, attrs ...any) error {
	reqID := uuid.New().String()
	logger := e.logger.With(append([]any{"action", action, "request_id", reqID}, attrs...)...)

	cs := &changeSet{}
	e.mu.Lock()
	err := fn(cs)
	e.mu.Unlock()

	if err != nil {
		if isStructural(err) {
			logger.Warn("action rejected", "error", err)
		} else {
			logger.Error("action failed", "error", err)
		}
		return err
	}

	for i := range cs.changes {
		cs.changes[i].RequestID = reqID
	}
	logger.Info("action applied", "changes", len(cs.changes))
	e.notifier.Broadcast(cs.changes...)
	return nil
}

// isStructural reports whether err is one of the typed errors that reject
// an operation before anything is written.
func isStructural(err error) bool {
	var (
		notFound  *core.NotFoundError
		name      *core.NameRequiredError
		cyclic    *core.CyclicInheritanceError
		subtype   *core.InvalidSubtypeError
		mismatch  *core.TypeMismatchError
		ownership *core.OwnershipCycleError
		params    *core.InvalidParamsError
	)
	return errors.As(err, &notFound) || errors.As(err, &name) || errors.As(err, &cyclic) ||
		errors.As(err, &subtype) || errors.As(err, &mismatch) || errors.As(err, &ownership) ||
		errors.As(err, &params)
}

// ancestorsOrSelf walks master lists upward from tableOID, breadth first.
func (e *Engine) ancestorsOrSelf(ctx context.Context, tableOID int64) ([]int64, error) {
	seen := map[int64]bool{tableOID: true}
	out := []int64{tableOID}
	for i := 0; i < len(out); i++ {
		t, err := e.store.GetTable(ctx, out[i])
		if err != nil {
			return nil, err
		}
		for _, m := range t.MasterOIDs {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// descendantsOrSelf returns tableOID followed by all of its subtypes.
func (e *Engine) descendantsOrSelf(ctx context.Context, tableOID int64) ([]int64, error) {
	subs, err := e.store.Subtypes(ctx, tableOID)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(subs)+1)
	out = append(out, tableOID)
	for _, s := range subs {
		out = append(out, s.OID)
	}
	return out, nil
}

// upward is ancestorsOrSelf for notifications: the mutation has already
// committed, so a lookup failure only narrows the notified set.
func (e *Engine) upward(ctx context.Context, tableOID int64) []int64 {
	oids, err := e.ancestorsOrSelf(ctx, tableOID)
	if err != nil {
		e.logger.Warn("failed to resolve masters for notification", "table_oid", tableOID, "error", err)
		return []int64{tableOID}
	}
	return oids
}

// downward is descendantsOrSelf for notifications.
func (e *Engine) downward(ctx context.Context, tableOID int64) []int64 {
	oids, err := e.descendantsOrSelf(ctx, tableOID)
	if err != nil {
		e.logger.Warn("failed to resolve subtypes for notification", "table_oid", tableOID, "error", err)
		return []int64{tableOID}
	}
	return oids
}

// checkKind fails with NotFoundError unless tableOID exists and has the given kind.
func (e *Engine) checkKind(ctx context.Context, tableOID int64, kind core.TableKind) error {
	t, err := e.store.GetTable(ctx, tableOID)
	if err != nil {
		return err
	}
	if t.Kind != kind {
		return &core.NotFoundError{Kind: kind.String(), OID: tableOID}
	}
	return nil
}
