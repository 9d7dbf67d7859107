// Package core defines the shared language of the leaptable system.
//
// This package contains:
//   - Column type variants (ColumnType and its six implementations)
//   - Schema and row entities (Table, Column, Row)
//   - Stream items produced by queries (RowStart, RowExists, CellValue)
//   - Change notifications emitted by mutations
//   - The structural error taxonomy
//   - The Store interface implemented by internal/state
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
