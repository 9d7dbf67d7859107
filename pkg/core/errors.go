package core

import (
	"errors"
	"fmt"
)

// ErrDatabaseNotOpened is returned when a store is used before Open.
var ErrDatabaseNotOpened = errors.New("database not opened")

// NotFoundError is returned when a table, column, row or dropdown list OID is unknown.
type NotFoundError struct {
	Kind string
	OID  int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Kind, e.OID)
}

// NameRequiredError is returned when a required name field is empty or whitespace.
type NameRequiredError struct {
	Field string
}

func (e *NameRequiredError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// CyclicInheritanceError is returned when a master list would make the inheritance graph cyclic.
type CyclicInheritanceError struct {
	TableOID  int64
	MasterOID int64
}

func (e *CyclicInheritanceError) Error() string {
	if e.TableOID == e.MasterOID {
		return fmt.Sprintf("table %d cannot inherit from itself", e.TableOID)
	}
	return fmt.Sprintf("table %d cannot inherit from table %d: table %d already inherits from table %d",
		e.TableOID, e.MasterOID, e.MasterOID, e.TableOID)
}

// InvalidSubtypeError is returned when a retype target is not a subtype of the base type.
type InvalidSubtypeError struct {
	BaseOID    int64
	SubtypeOID int64
}

func (e *InvalidSubtypeError) Error() string {
	return fmt.Sprintf("table %d is not a subtype of table %d", e.SubtypeOID, e.BaseOID)
}

// TypeMismatchError is returned when an operation does not apply to a column's type.
type TypeMismatchError struct {
	ColumnOID int64
	Type      ColumnType
	Operation string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("column %d of type %s does not support %s", e.ColumnOID, e.Type, e.Operation)
}

// OwnershipCycleError is returned when linking a child object would make a
// row own itself.
type OwnershipCycleError struct {
	RowOID      int64
	ChildRowOID int64
}

func (e *OwnershipCycleError) Error() string {
	return fmt.Sprintf("row %d cannot own row %d: row %d already owns it", e.RowOID, e.ChildRowOID, e.ChildRowOID)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// UnknownOperationError is returned when an action or query name is not recognised.
type UnknownOperationError struct {
	Name string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q", e.Name)
}

// InvalidParamsError is returned when an operation payload cannot be
// decoded or fails parameter validation.
type InvalidParamsError struct {
	Operation string
	Err       error
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid parameters for %s: %v", e.Operation, e.Err)
}

func (e *InvalidParamsError) Unwrap() error {
	return e.Err
}
