package core

import "context"

// Store defines the persistence operations behind the query/mutation engine.
// Implementations own all schema and row state; every mutation either
// commits completely or leaves the store unchanged.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Table operations
	CreateTable(ctx context.Context, name string, kind TableKind, masterOIDs []int64) (int64, error)
	EditTable(ctx context.Context, tableOID int64, name string, masterOIDs []int64) error
	DeleteTable(ctx context.Context, tableOID int64) (*TableDeletion, error)
	GetTable(ctx context.Context, tableOID int64) (*Table, error)
	ListTables(ctx context.Context, kind TableKind) ([]TableSummary, error)
	TableTree(ctx context.Context, kind TableKind) ([]TableSummary, error)
	TrashTable(ctx context.Context, tableOID int64) error
	RestoreTable(ctx context.Context, tableOID int64) error
	SetDisplayColumn(ctx context.Context, tableOID int64, columnOID *int64) error

	// Inheritance queries
	Subtypes(ctx context.Context, tableOID int64) ([]SubtypeOption, error)
	MasterListOptions(ctx context.Context, tableOID *int64, allowTables bool) ([]MasterListOption, error)

	// Column operations
	CreateColumn(ctx context.Context, spec ColumnSpec) (int64, error)
	EditColumn(ctx context.Context, edit ColumnEdit) error
	SetColumnWidth(ctx context.Context, tableOID, columnOID, width int64) error
	ReorderColumn(ctx context.Context, tableOID, columnOID, oldOrdering int64, newOrdering *int64) error
	DeleteColumn(ctx context.Context, tableOID, columnOID int64) error
	GetColumn(ctx context.Context, columnOID int64) (*Column, error)
	ListColumns(ctx context.Context, tableOID int64) ([]Column, error)

	// Dropdown and reference values
	SetDropdownValues(ctx context.Context, columnOID int64, values []DropdownValue) error
	DropdownValues(ctx context.Context, columnOID int64) ([]DropdownValue, error)

	// Row operations
	PushRow(ctx context.Context, tableOID int64, parentRowOID *int64) (int64, error)
	InsertRow(ctx context.Context, tableOID int64, parentRowOID *int64, beforeRowOID int64) (int64, error)
	DeleteRow(ctx context.Context, tableOID, rowOID int64) error
	TrashRow(ctx context.Context, tableOID, rowOID int64) error
	RestoreRow(ctx context.Context, tableOID, rowOID int64) error
	RetypeRow(ctx context.Context, baseTypeOID, baseRowOID, newSubtypeOID int64) (int64, error)
	GetRow(ctx context.Context, tableOID, rowOID int64) (*Row, error)
	FindRow(ctx context.Context, tableOID, rowOID int64) (*Row, error)
	RowPage(ctx context.Context, tableOID int64, parentRowOID *int64, offset, limit int) ([]Row, error)
	RowCells(ctx context.Context, rowOID int64, columns []Column) ([]CellValue, error)

	// Cell operations
	UpdateCellPrimitive(ctx context.Context, tableOID, rowOID, columnOID int64, value *string) error
	UpdateCellBlob(ctx context.Context, tableOID, rowOID, columnOID int64, src BlobSource) error
	SetObjectCell(ctx context.Context, tableOID, rowOID, columnOID int64, childTypeOID, childRowOID *int64) (int64, int64, error)
	BlobInfo(ctx context.Context, tableOID, rowOID, columnOID int64) (*BlobInfo, error)
}

// TableDeletion reports what a table deletion removed.
type TableDeletion struct {
	Table          Table
	ColumnCount    int
	RowCount       int
	DetachedOIDs   []int64
	AffectedTables []int64
}
