package core

// TableKind distinguishes plain tables from object types.
type TableKind int

// Table kinds.
const (
	KindTable TableKind = iota
	KindObjectType
)

func (k TableKind) String() string {
	if k == KindObjectType {
		return "object type"
	}
	return "table"
}

// Table is a user-defined table or object type.
type Table struct {
	OID  int64
	Name string
	Kind TableKind
	// MasterOIDs lists the tables this table inherits columns from, in declaration order.
	MasterOIDs []int64
	// DisplayColumnOID is the column used to render references to rows of this table.
	// Nil means the first visible column.
	DisplayColumnOID *int64
	// Trashed tables are hidden from table lists and master options.
	Trashed bool
}

// TableSummary is a lightweight table listing entry. HierarchyLevel is
// the depth below the listing's root types; flat listings leave it zero.
type TableSummary struct {
	OID            int64
	Name           string
	HierarchyLevel int
}

// Column is a column defined on exactly one table.
type Column struct {
	OID      int64
	TableOID int64
	Name     string
	// Ordering is the dense, zero-based display position within TableOID.
	Ordering     int64
	Width        int64
	Style        string
	Type         ColumnType
	IsNullable   bool
	IsUnique     bool
	IsPrimaryKey bool
}

// Required reports whether null values fail validation.
func (c Column) Required() bool {
	return !c.IsNullable || c.IsPrimaryKey
}

// MustBeUnique reports whether duplicate values fail validation.
func (c Column) MustBeUnique() bool {
	return c.IsUnique || c.IsPrimaryKey
}

// ColumnSpec describes a column to create.
type ColumnSpec struct {
	TableOID int64
	// Ordering is the insert position; nil appends.
	Ordering     *int64
	Name         string
	Type         ColumnType
	Style        string
	IsNullable   bool
	IsUnique     bool
	IsPrimaryKey bool
}

// ColumnEdit describes the in-place update of a column.
type ColumnEdit struct {
	TableOID     int64
	ColumnOID    int64
	Name         string
	Type         ColumnType
	Style        string
	IsNullable   bool
	IsUnique     bool
	IsPrimaryKey bool
}

// Row is a stored row. A row is visible in every table between its
// subtype and the roots of the subtype's inheritance graph.
type Row struct {
	OID int64
	// SubtypeOID is the most specific table the row has been typed as.
	SubtypeOID   int64
	ParentRowOID *int64
	Ordering     int64
	Trashed      bool
}

// DropdownValue is one legal value of a select or reference column.
type DropdownValue struct {
	TrueValue    string `json:"trueValue" yaml:"trueValue" mapstructure:"trueValue"`
	DisplayValue string `json:"displayValue" yaml:"displayValue" mapstructure:"displayValue"`
}

// SubtypeOption is an entry of a subtype listing.
type SubtypeOption struct {
	OID            int64
	Name           string
	HierarchyLevel int
}

// MasterListOption is a candidate master table for a table.
type MasterListOption struct {
	OID            int64
	Name           string
	HierarchyLevel int
	IsDisabled     bool
}

// BlobInfo describes the payload stored in a File or Image cell.
type BlobInfo struct {
	FileName string
	Size     int64
}

// BlobSource supplies a payload for a File or Image cell.
type BlobSource struct {
	FileName string
	Data     []byte
}
