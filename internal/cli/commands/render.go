package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leaptable/internal/config"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// Renderer writes command results in the configured output format.
type Renderer struct {
	w      io.Writer
	format string
}

// NewRenderer creates a renderer for format (table, json or yaml).
func NewRenderer(w io.Writer, format string) *Renderer {
	if format == "" {
		format = config.DefaultOutput
	}
	return &Renderer{w: w, format: format}
}

// Table renders rows under header as a table, or records as JSON/YAML.
func (r *Renderer) Table(header []string, rows [][]any, records any) error {
	switch r.format {
	case config.OutputJSON:
		return r.encodeJSON(records)
	case config.OutputYAML:
		return r.encodeYAML(records)
	}

	if len(rows) == 0 {
		_, _ = fmt.Fprintln(r.w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)
	for _, row := range rows {
		t.AppendRow(table.Row(row))
	}
	t.Render()

	if len(rows) == 1 {
		_, _ = fmt.Fprintln(r.w, "(1 row)")
	} else {
		_, _ = fmt.Fprintf(r.w, "(%d rows)\n", len(rows))
	}
	return nil
}

// Result renders a single value: text in table mode, v as JSON/YAML otherwise.
func (r *Renderer) Result(v any, text string) error {
	switch r.format {
	case config.OutputJSON:
		return r.encodeJSON(v)
	case config.OutputYAML:
		return r.encodeYAML(v)
	}
	_, err := fmt.Fprintln(r.w, text)
	return err
}

// Document renders v as JSON in json mode and as YAML otherwise.
func (r *Renderer) Document(v any) error {
	if r.format == config.OutputJSON {
		return r.encodeJSON(v)
	}
	return r.encodeYAML(v)
}

func (r *Renderer) encodeJSON(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Renderer) encodeYAML(v any) error {
	enc := yaml.NewEncoder(r.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Serializable views of engine results.

type tableView struct {
	OID            int64  `json:"oid" yaml:"oid"`
	Name           string `json:"name" yaml:"name"`
	HierarchyLevel int    `json:"hierarchyLevel,omitempty" yaml:"hierarchyLevel,omitempty"`
}

type tableMetaView struct {
	OID              int64   `json:"oid" yaml:"oid"`
	Name             string  `json:"name" yaml:"name"`
	Kind             string  `json:"kind" yaml:"kind"`
	MasterOIDs       []int64 `json:"masterTableIdList" yaml:"masterTableIdList"`
	DisplayColumnOID *int64  `json:"displayColumnOid,omitempty" yaml:"displayColumnOid,omitempty"`
	Trashed          bool    `json:"trashed" yaml:"trashed"`
}

type columnView struct {
	OID          int64         `json:"oid" yaml:"oid"`
	TableOID     int64         `json:"tableOid" yaml:"tableOid"`
	Name         string        `json:"name" yaml:"name"`
	Ordering     int64         `json:"ordering" yaml:"ordering"`
	Width        int64         `json:"width" yaml:"width"`
	Style        string        `json:"style,omitempty" yaml:"style,omitempty"`
	Type         core.TypeSpec `json:"type" yaml:"type"`
	IsNullable   bool          `json:"isNullable" yaml:"isNullable"`
	IsUnique     bool          `json:"isUnique" yaml:"isUnique"`
	IsPrimaryKey bool          `json:"isPrimaryKey" yaml:"isPrimaryKey"`
}

type cellView struct {
	ColumnOID         int64                   `json:"columnOid" yaml:"columnOid"`
	Column            string                  `json:"column" yaml:"column"`
	TrueValue         *string                 `json:"trueValue" yaml:"trueValue"`
	DisplayValue      *string                 `json:"displayValue" yaml:"displayValue"`
	FailedValidations []core.FailedValidation `json:"failedValidations,omitempty" yaml:"failedValidations,omitempty"`
}

type rowView struct {
	RowOID   int64      `json:"rowOid" yaml:"rowOid"`
	RowIndex int64      `json:"rowIndex,omitempty" yaml:"rowIndex,omitempty"`
	TableOID int64      `json:"tableOid,omitempty" yaml:"tableOid,omitempty"`
	Cells    []cellView `json:"cells" yaml:"cells"`
}

type rowExistsView struct {
	Exists   bool  `json:"exists" yaml:"exists"`
	TableOID int64 `json:"tableOid,omitempty" yaml:"tableOid,omitempty"`
}

type rowStartView struct {
	RowOID   int64 `json:"rowOid" yaml:"rowOid"`
	RowIndex int64 `json:"rowIndex" yaml:"rowIndex"`
}

type optionView struct {
	OID            int64  `json:"oid" yaml:"oid"`
	Name           string `json:"name" yaml:"name"`
	HierarchyLevel int    `json:"hierarchyLevel" yaml:"hierarchyLevel"`
	IsDisabled     *bool  `json:"isDisabled,omitempty" yaml:"isDisabled,omitempty"`
}

type blobView struct {
	FileName string `json:"fileName" yaml:"fileName"`
	Size     int64  `json:"size" yaml:"size"`
}

type deletionView struct {
	Table          string  `json:"table" yaml:"table"`
	ColumnCount    int     `json:"columnCount" yaml:"columnCount"`
	RowCount       int     `json:"rowCount" yaml:"rowCount"`
	DetachedOIDs   []int64 `json:"detachedTableIdList,omitempty" yaml:"detachedTableIdList,omitempty"`
	AffectedTables []int64 `json:"affectedTableIdList,omitempty" yaml:"affectedTableIdList,omitempty"`
}

func newColumnView(c core.Column) columnView {
	return columnView{
		OID:          c.OID,
		TableOID:     c.TableOID,
		Name:         c.Name,
		Ordering:     c.Ordering,
		Width:        c.Width,
		Style:        c.Style,
		Type:         core.SpecOf(c.Type),
		IsNullable:   c.IsNullable,
		IsUnique:     c.IsUnique,
		IsPrimaryKey: c.IsPrimaryKey,
	}
}

func newCellView(c core.CellValue) cellView {
	return cellView{
		ColumnOID:         c.ColumnOID,
		Column:            c.ColumnName,
		TrueValue:         c.TrueValue,
		DisplayValue:      c.DisplayValue,
		FailedValidations: c.FailedValidations,
	}
}

func newDeletionView(d *core.TableDeletion) deletionView {
	return deletionView{
		Table:          d.Table.Name,
		ColumnCount:    d.ColumnCount,
		RowCount:       d.RowCount,
		DetachedOIDs:   d.DetachedOIDs,
		AffectedTables: d.AffectedTables,
	}
}

// view converts an engine result into its serializable form.
func view(v any) any {
	switch x := v.(type) {
	case core.TableSummary:
		return tableView{OID: x.OID, Name: x.Name, HierarchyLevel: x.HierarchyLevel}
	case *core.Table:
		return tableMetaView{OID: x.OID, Name: x.Name, Kind: x.Kind.String(), MasterOIDs: x.MasterOIDs,
			DisplayColumnOID: x.DisplayColumnOID, Trashed: x.Trashed}
	case core.Column:
		return newColumnView(x)
	case core.CellValue:
		return newCellView(x)
	case core.RowStart:
		return rowStartView{RowOID: x.RowOID, RowIndex: x.RowIndex}
	case core.RowExists:
		return rowExistsView{Exists: x.Exists, TableOID: x.TableOID}
	case core.SubtypeOption:
		return optionView{OID: x.OID, Name: x.Name, HierarchyLevel: x.HierarchyLevel}
	case core.MasterListOption:
		disabled := x.IsDisabled
		return optionView{OID: x.OID, Name: x.Name, HierarchyLevel: x.HierarchyLevel, IsDisabled: &disabled}
	case *core.BlobInfo:
		return blobView{FileName: x.FileName, Size: x.Size}
	case *core.TableDeletion:
		return newDeletionView(x)
	default:
		return v
	}
}

// display formats an optional cell value for a table cell.
func display(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
