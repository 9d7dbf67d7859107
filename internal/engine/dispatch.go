package engine

import (
	"context"
	"iter"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

// Operation payloads. Field names follow the symbolic operation interface.

type createTableParams struct {
	Name              string  `mapstructure:"name"`
	MasterTableIDList []int64 `mapstructure:"masterTableIdList" validate:"dive,min=1"`
}

type editTableParams struct {
	TableOID          int64   `mapstructure:"tableOid" validate:"required"`
	Name              string  `mapstructure:"name"`
	MasterTableIDList []int64 `mapstructure:"masterTableIdList" validate:"dive,min=1"`
}

type tableParams struct {
	TableOID int64 `mapstructure:"tableOid" validate:"required"`
}

type displayColumnParams struct {
	TableOID  int64  `mapstructure:"tableOid" validate:"required"`
	ColumnOID *int64 `mapstructure:"columnOid" validate:"omitempty,min=1"`
}

type createColumnParams struct {
	TableOID     int64         `mapstructure:"tableOid" validate:"required"`
	Ordering     *int64        `mapstructure:"ordering" validate:"omitempty,min=0"`
	Name         string        `mapstructure:"name"`
	Type         core.TypeSpec `mapstructure:"type"`
	Style        string        `mapstructure:"style"`
	IsNullable   bool          `mapstructure:"isNullable"`
	IsUnique     bool          `mapstructure:"isUnique"`
	IsPrimaryKey bool          `mapstructure:"isPrimaryKey"`
}

type editColumnParams struct {
	TableOID     int64         `mapstructure:"tableOid" validate:"required"`
	ColumnOID    int64         `mapstructure:"columnOid" validate:"required"`
	Name         string        `mapstructure:"name"`
	Type         core.TypeSpec `mapstructure:"type"`
	Style        string        `mapstructure:"style"`
	IsNullable   bool          `mapstructure:"isNullable"`
	IsUnique     bool          `mapstructure:"isUnique"`
	IsPrimaryKey bool          `mapstructure:"isPrimaryKey"`
}

type columnWidthParams struct {
	TableOID  int64 `mapstructure:"tableOid" validate:"required"`
	ColumnOID int64 `mapstructure:"columnOid" validate:"required"`
	Width     int64 `mapstructure:"width" validate:"min=1"`
}

type reorderColumnParams struct {
	TableOID    int64  `mapstructure:"tableOid" validate:"required"`
	ColumnOID   int64  `mapstructure:"columnOid" validate:"required"`
	OldOrdering int64  `mapstructure:"oldOrdering" validate:"min=0"`
	NewOrdering *int64 `mapstructure:"newOrdering" validate:"omitempty,min=0"`
}

type columnParams struct {
	TableOID  int64 `mapstructure:"tableOid" validate:"required"`
	ColumnOID int64 `mapstructure:"columnOid" validate:"required"`
}

type dropdownColumnParams struct {
	ColumnOID int64 `mapstructure:"columnOid" validate:"required"`
}

type dropdownValuesParams struct {
	ColumnOID int64                `mapstructure:"columnOid" validate:"required"`
	Values    []core.DropdownValue `mapstructure:"values"`
}

type pushRowParams struct {
	TableOID     int64  `mapstructure:"tableOid" validate:"required"`
	ParentRowOID *int64 `mapstructure:"parentRowOid" validate:"omitempty,min=1"`
}

type insertRowParams struct {
	TableOID     int64  `mapstructure:"tableOid" validate:"required"`
	ParentRowOID *int64 `mapstructure:"parentRowOid" validate:"omitempty,min=1"`
	BeforeRowOID int64  `mapstructure:"beforeRowOid" validate:"required"`
}

type retypeRowParams struct {
	BaseTypeOID   int64 `mapstructure:"baseTypeOid" validate:"required"`
	BaseRowOID    int64 `mapstructure:"baseRowOid" validate:"required"`
	NewSubtypeOID int64 `mapstructure:"newSubtypeOid" validate:"required"`
}

type rowParams struct {
	TableOID int64 `mapstructure:"tableOid" validate:"required"`
	RowOID   int64 `mapstructure:"rowOid" validate:"required"`
}

type primitiveCellParams struct {
	TableOID  int64   `mapstructure:"tableOid" validate:"required"`
	RowOID    int64   `mapstructure:"rowOid" validate:"required"`
	ColumnOID int64   `mapstructure:"columnOid" validate:"required"`
	Value     *string `mapstructure:"value"`
}

type blobCellParams struct {
	TableOID  int64  `mapstructure:"tableOid" validate:"required"`
	RowOID    int64  `mapstructure:"rowOid" validate:"required"`
	ColumnOID int64  `mapstructure:"columnOid" validate:"required"`
	FilePath  string `mapstructure:"filePath" validate:"required"`
}

type objectCellParams struct {
	TableOID     int64  `mapstructure:"tableOid" validate:"required"`
	RowOID       int64  `mapstructure:"rowOid" validate:"required"`
	ColumnOID    int64  `mapstructure:"columnOid" validate:"required"`
	ChildTypeOID *int64 `mapstructure:"childTypeOid" validate:"omitempty,min=1"`
	ChildRowOID  *int64 `mapstructure:"childRowOid" validate:"omitempty,min=1"`
}

type cellParams struct {
	TableOID  int64 `mapstructure:"tableOid" validate:"required"`
	RowOID    int64 `mapstructure:"rowOid" validate:"required"`
	ColumnOID int64 `mapstructure:"columnOid" validate:"required"`
}

type masterListParams struct {
	TableOID                   *int64 `mapstructure:"tableOid" validate:"omitempty,min=1"`
	AllowInheritanceFromTables bool   `mapstructure:"allowInheritanceFromTables"`
}

type tableDataParams struct {
	TableOID     int64  `mapstructure:"tableOid" validate:"required"`
	ParentRowOID *int64 `mapstructure:"parentRowOid" validate:"omitempty,min=1"`
	PageNum      int    `mapstructure:"pageNum" validate:"min=1"`
	PageSize     int    `mapstructure:"pageSize" validate:"min=1"`
}

type objectDataParams struct {
	ObjTypeOID int64 `mapstructure:"objTypeOid" validate:"required"`
	ObjRowOID  int64 `mapstructure:"objRowOid" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})
	return v
}

// decode converts a symbolic payload into params and validates it.
func (e *Engine) decode(operation string, payload map[string]any, params any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           params,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return &core.InvalidParamsError{Operation: operation, Err: err}
	}
	if err := dec.Decode(payload); err != nil {
		return &core.InvalidParamsError{Operation: operation, Err: err}
	}
	if err := e.validate.Struct(params); err != nil {
		return &core.InvalidParamsError{Operation: operation, Err: err}
	}
	return nil
}

// decodeAs decodes payload into a fresh P.
func decodeAs[P any](e *Engine, operation string, payload map[string]any) (P, error) {
	var p P
	err := e.decode(operation, payload, &p)
	return p, err
}

func columnType(operation string, spec core.TypeSpec) (core.ColumnType, error) {
	t, err := spec.ColumnType()
	if err != nil {
		return nil, &core.InvalidParamsError{Operation: operation, Err: err}
	}
	return t, nil
}

type actionHandler func(ctx context.Context, e *Engine, payload map[string]any) (any, error)

type queryHandler func(ctx context.Context, e *Engine, payload map[string]any) (iter.Seq2[any, error], error)

var actionHandlers = map[string]actionHandler{
	"createTable": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[createTableParams](e, "createTable", payload)
		if err != nil {
			return nil, err
		}
		return e.CreateTable(ctx, p.Name, p.MasterTableIDList)
	},
	"createObjectType": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[createTableParams](e, "createObjectType", payload)
		if err != nil {
			return nil, err
		}
		return e.CreateObjectType(ctx, p.Name, p.MasterTableIDList)
	},
	"editTableMetadata": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[editTableParams](e, "editTableMetadata", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.EditTable(ctx, p.TableOID, p.Name, p.MasterTableIDList)
	},
	"editObjectTypeMetadata": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[editTableParams](e, "editObjectTypeMetadata", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.EditObjectType(ctx, p.TableOID, p.Name, p.MasterTableIDList)
	},
	"deleteTable": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[tableParams](e, "deleteTable", payload)
		if err != nil {
			return nil, err
		}
		return e.DeleteTable(ctx, p.TableOID)
	},
	"deleteObjectType": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[tableParams](e, "deleteObjectType", payload)
		if err != nil {
			return nil, err
		}
		return e.DeleteObjectType(ctx, p.TableOID)
	},
	"trashTable": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[tableParams](e, "trashTable", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.TrashTable(ctx, p.TableOID)
	},
	"restoreTable": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[tableParams](e, "restoreTable", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.RestoreTable(ctx, p.TableOID)
	},
	"trashObjectType": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[tableParams](e, "trashObjectType", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.TrashObjectType(ctx, p.TableOID)
	},
	"restoreObjectType": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[tableParams](e, "restoreObjectType", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.RestoreObjectType(ctx, p.TableOID)
	},
	"setTableDisplayColumn": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[displayColumnParams](e, "setTableDisplayColumn", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.SetDisplayColumn(ctx, p.TableOID, p.ColumnOID)
	},
	"createTableColumn": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[createColumnParams](e, "createTableColumn", payload)
		if err != nil {
			return nil, err
		}
		t, err := columnType("createTableColumn", p.Type)
		if err != nil {
			return nil, err
		}
		return e.CreateColumn(ctx, core.ColumnSpec{
			TableOID:     p.TableOID,
			Ordering:     p.Ordering,
			Name:         p.Name,
			Type:         t,
			Style:        p.Style,
			IsNullable:   p.IsNullable,
			IsUnique:     p.IsUnique,
			IsPrimaryKey: p.IsPrimaryKey,
		})
	},
	"editTableColumnMetadata": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[editColumnParams](e, "editTableColumnMetadata", payload)
		if err != nil {
			return nil, err
		}
		t, err := columnType("editTableColumnMetadata", p.Type)
		if err != nil {
			return nil, err
		}
		return nil, e.EditColumn(ctx, core.ColumnEdit{
			TableOID:     p.TableOID,
			ColumnOID:    p.ColumnOID,
			Name:         p.Name,
			Type:         t,
			Style:        p.Style,
			IsNullable:   p.IsNullable,
			IsUnique:     p.IsUnique,
			IsPrimaryKey: p.IsPrimaryKey,
		})
	},
	"editTableColumnWidth": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[columnWidthParams](e, "editTableColumnWidth", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.SetColumnWidth(ctx, p.TableOID, p.ColumnOID, p.Width)
	},
	"reorderTableColumn": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[reorderColumnParams](e, "reorderTableColumn", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.ReorderColumn(ctx, p.TableOID, p.ColumnOID, p.OldOrdering, p.NewOrdering)
	},
	"deleteTableColumn": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[columnParams](e, "deleteTableColumn", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.DeleteColumn(ctx, p.TableOID, p.ColumnOID)
	},
	"editTableColumnDropdownValues": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[dropdownValuesParams](e, "editTableColumnDropdownValues", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.SetDropdownValues(ctx, p.ColumnOID, p.Values)
	},
	"pushTableRow": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[pushRowParams](e, "pushTableRow", payload)
		if err != nil {
			return nil, err
		}
		return e.PushRow(ctx, p.TableOID, p.ParentRowOID)
	},
	"insertTableRow": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[insertRowParams](e, "insertTableRow", payload)
		if err != nil {
			return nil, err
		}
		return e.InsertRow(ctx, p.TableOID, p.ParentRowOID, p.BeforeRowOID)
	},
	"retypeTableRow": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[retypeRowParams](e, "retypeTableRow", payload)
		if err != nil {
			return nil, err
		}
		return e.RetypeRow(ctx, p.BaseTypeOID, p.BaseRowOID, p.NewSubtypeOID)
	},
	"deleteTableRow": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[rowParams](e, "deleteTableRow", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.DeleteRow(ctx, p.TableOID, p.RowOID)
	},
	"trashTableRow": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[rowParams](e, "trashTableRow", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.TrashRow(ctx, p.TableOID, p.RowOID)
	},
	"restoreTableRow": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[rowParams](e, "restoreTableRow", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.RestoreRow(ctx, p.TableOID, p.RowOID)
	},
	"updateTableCellStoredAsPrimitiveValue": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[primitiveCellParams](e, "updateTableCellStoredAsPrimitiveValue", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.UpdateCellPrimitive(ctx, p.TableOID, p.RowOID, p.ColumnOID, p.Value)
	},
	"updateTableCellStoredAsBlob": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[blobCellParams](e, "updateTableCellStoredAsBlob", payload)
		if err != nil {
			return nil, err
		}
		return nil, e.UpdateCellBlob(ctx, p.TableOID, p.RowOID, p.ColumnOID, p.FilePath)
	},
	"setTableObjectCell": func(ctx context.Context, e *Engine, payload map[string]any) (any, error) {
		p, err := decodeAs[objectCellParams](e, "setTableObjectCell", payload)
		if err != nil {
			return nil, err
		}
		return e.SetObjectCell(ctx, p.TableOID, p.RowOID, p.ColumnOID, p.ChildTypeOID, p.ChildRowOID)
	},
}

var queryHandlers = map[string]queryHandler{
	"get_table_list": func(ctx context.Context, e *Engine, payload map[string]any) (iter.Seq2[any, error], error) {
		if err := e.decode("get_table_list", payload, &struct{}{}); err != nil {
			return nil, err
		}
		return anySeq(e.TableList(ctx)), nil
	},
	"get_object_type_list": func(ctx context.Context, e *Engine, payload map[string]any) (iter.Seq2[any, error], error) {
		if err := e.decode("get_object_type_list", payload, &struct{}{}); err != nil {
			return nil, err
		}
		return anySeq(e.ObjectTypeList(ctx)), nil
	},
	"get_table_metadata": func(ctx context.Context, e *Engine, payload map[string]any) (iter.Seq2[any, error], error) {
		p, err := decodeAs[tableParams](e, "get_table_metadata", payload)
		if err != nil {
			return nil, err
		}
		return single(func() (any, error) { return e.TableMetadata(ctx, p.TableOID) }), nil
	},
	"get_table_column_list": func(ctx context.Context, e *Engine, payload map[string]any) (iter.Seq2[any, error], error) {
		p, err := decodeAs[tableParams](e, "get_table_column_list", payload)
		if err != nil {
			return nil, err
		}
		return anySeq(e.TableColumns(ctx, p.TableOID)), nil
	},
	"get_table_column_dropdown_values": func(ctx context.Context, e *Engine, payload map[string]any) (iter.Seq2[any, error], error) {
		p, err := decodeAs[dropdownColumnParams](e, "get_table_column_dropdown_values", payload)
		if err != nil {
			return nil, err
		}
		return anySeq(e.DropdownValues(ctx, p.ColumnOID)), nil
	},
	"get_subtype_list": func(ctx context.Context, e *Engine, payload map[string]any) (iter.Seq2[any, error], error) {
		p, err := decodeAs[tableParams](e, "get_subtype_list", payload)
		if err != nil {
			return nil, err
		}
		return anySeq(e.Subtypes(ctx, p.TableOID)), nil
	},
	"get_master_list_option_dropdown_values": func(ctx context.Context, e *Engine, payload map[string]any) (iter.Seq2[any, error], error) {
		p, err := decodeAs[masterListParams](e, "get_master_list_option_dropdown_values", payload)
		if err != nil {
			return nil, err
		}
		return anySeq(e.MasterListOptions(ctx, p.TableOID, p.AllowInheritanceFromTables)), nil
	},
	"get_table_data": func(ctx context.Context, e *Engine, payload map[string]any) (iter.Seq2[any, error], error) {
		p, err := decodeAs[tableDataParams](e, "get_table_data", payload)
		if err != nil {
			return nil, err
		}
		return anySeq(e.TableData(ctx, p.TableOID, p.ParentRowOID, p.PageNum, p.PageSize)), nil
	},
	"get_table_row": func(ctx context.Context, e *Engine, payload map[string]any) (iter.Seq2[any, error], error) {
		p, err := decodeAs[rowParams](e, "get_table_row", payload)
		if err != nil {
			return nil, err
		}
		return anySeq(e.TableRow(ctx, p.TableOID, p.RowOID)), nil
	},
	"get_object_data": func(ctx context.Context, e *Engine, payload map[string]any) (iter.Seq2[any, error], error) {
		p, err := decodeAs[objectDataParams](e, "get_object_data", payload)
		if err != nil {
			return nil, err
		}
		return anySeq(e.ObjectData(ctx, p.ObjTypeOID, p.ObjRowOID)), nil
	},
	"get_blob_value": func(ctx context.Context, e *Engine, payload map[string]any) (iter.Seq2[any, error], error) {
		p, err := decodeAs[cellParams](e, "get_blob_value", payload)
		if err != nil {
			return nil, err
		}
		return single(func() (any, error) { return e.BlobValue(ctx, p.TableOID, p.RowOID, p.ColumnOID) }), nil
	},
}

// Dispatch runs the action named action with a symbolic payload.
// The result is the new oid for create, push and insert actions, the
// previous subtype for retypeTableRow, a *core.TableDeletion for delete
// table actions, an ObjectLink for setTableObjectCell and nil otherwise.
func (e *Engine) Dispatch(ctx context.Context, action string, payload map[string]any) (any, error) {
	h, ok := actionHandlers[action]
	if !ok {
		return nil, &core.UnknownOperationError{Name: action}
	}
	return h(ctx, e, payload)
}

// Query starts the query named name with a symbolic payload. Payload
// errors are returned immediately; store errors arrive through the stream.
func (e *Engine) Query(ctx context.Context, name string, payload map[string]any) (iter.Seq2[any, error], error) {
	h, ok := queryHandlers[name]
	if !ok {
		return nil, &core.UnknownOperationError{Name: name}
	}
	return h(ctx, e, payload)
}

// Actions returns the sorted names accepted by Dispatch.
func Actions() []string {
	return sortedKeys(actionHandlers)
}

// Queries returns the sorted names accepted by Query.
func Queries() []string {
	return sortedKeys(queryHandlers)
}

// IsQuery reports whether name is a query rather than an action.
func IsQuery(name string) bool {
	_, ok := queryHandlers[name]
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func anySeq[T any](seq iter.Seq2[T, error]) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for item, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// single streams the one value fn returns.
func single(fn func() (any, error)) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		v, err := fn()
		if err != nil {
			yield(nil, err)
			return
		}
		yield(v, nil)
	}
}
