package core

// FailedValidation is an advisory constraint failure attached to a cell.
type FailedValidation struct {
	Description string `json:"description" yaml:"description"`
}

// TableDataItem is an item of a table data stream: a RowStart or a CellValue.
type TableDataItem interface {
	tableDataItem()
}

// RowItem is an item of a single-row stream: a RowExists or a CellValue.
type RowItem interface {
	rowItem()
}

// RowStart marks the beginning of a row in a table data stream.
type RowStart struct {
	RowOID int64
	// RowIndex is the 1-based position of the row across all pages.
	RowIndex int64
}

// RowExists is the first item of a single-row stream.
// When Exists is false the stream ends after this item.
type RowExists struct {
	Exists bool
	// TableOID is the concrete subtype the row resolves to.
	TableOID int64
}

// CellValue is one cell of a row.
type CellValue struct {
	TableOID          int64
	RowOID            int64
	ColumnOID         int64
	ColumnName        string
	ColumnType        ColumnType
	ColumnOrdering    int64
	TrueValue         *string
	DisplayValue      *string
	FailedValidations []FailedValidation
}

func (RowStart) tableDataItem()  {}
func (CellValue) tableDataItem() {}
func (RowExists) rowItem()       {}
func (CellValue) rowItem()       {}
