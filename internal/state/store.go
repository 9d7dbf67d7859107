// Package state persists leaptable schema and row data in SQLite.
//
// SQLiteStore implements core.Store. It owns tables, columns, the
// inheritance graph, dropdown option lists, rows and cells, and runs
// cell validation on every write. Every mutation runs in a single
// transaction; cascading deletions first compute the complete set of
// affected entities and only then apply it.
package state

import "github.com/leapstack-labs/leaptable/pkg/core"

// Store is an alias for core.Store.
type Store = core.Store

var _ Store = (*SQLiteStore)(nil)
