package core

// ChangeKind is the granularity of a change notification.
type ChangeKind int

// Change kinds.
const (
	// ChangeTableList means tables were created, renamed or deleted.
	ChangeTableList ChangeKind = iota
	// ChangeObjectTypeList means object types were created, renamed or deleted.
	ChangeObjectTypeList
	// ChangeTableDataDeep means the schema or row set of a table changed.
	ChangeTableDataDeep
	// ChangeTableDataShallow means only cell validations of a table changed.
	ChangeTableDataShallow
	// ChangeTableRow means a single row changed.
	ChangeTableRow
)

var changeKindNames = [...]string{
	ChangeTableList:        "update-table-list",
	ChangeObjectTypeList:   "update-object-type-list",
	ChangeTableDataDeep:    "update-table-data-deep",
	ChangeTableDataShallow: "update-table-data-shallow",
	ChangeTableRow:         "update-table-row",
}

func (k ChangeKind) String() string {
	if k < 0 || int(k) >= len(changeKindNames) {
		return "update-unknown"
	}
	return changeKindNames[k]
}

// Change is emitted after a successful mutation.
type Change struct {
	Kind     ChangeKind
	TableOID int64
	RowOID   int64
	// RequestID correlates the change with the action that caused it.
	RequestID string
}
