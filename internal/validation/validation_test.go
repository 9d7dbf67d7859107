package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

type fakeLookup struct {
	options    map[int64][]string
	rows       map[int64][]int64
	duplicates map[string]bool
	err        error
}

func (f *fakeLookup) OptionExists(_ context.Context, listOID int64, value string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, o := range f.options[listOID] {
		if o == value {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLookup) RowExists(_ context.Context, tableOID, rowOID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, r := range f.rows[tableOID] {
		if r == rowOID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLookup) IsDuplicate(_ context.Context, _ core.Column, _ int64, value string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.duplicates[value], nil
}

func ptr(s string) *string { return &s }

func descriptions(failures []core.FailedValidation) []string {
	out := make([]string, 0, len(failures))
	for _, f := range failures {
		out = append(out, f.Description)
	}
	return out
}

func TestCell(t *testing.T) {
	lookup := &fakeLookup{
		options:    map[int64][]string{7: {"red", "green"}},
		rows:       map[int64][]int64{3: {10, 11}},
		duplicates: map[string]bool{"Goblin": true},
	}
	text := core.Primitive{Kind: core.PrimitiveText}

	tests := []struct {
		name   string
		column core.Column
		value  *string
		want   []string
	}{
		{
			name:   "nullable null passes",
			column: core.Column{Type: text, IsNullable: true},
			value:  nil,
			want:   []string{},
		},
		{
			name:   "required null fails",
			column: core.Column{Type: text},
			value:  nil,
			want:   []string{MsgRequired},
		},
		{
			name:   "unique duplicate fails",
			column: core.Column{Type: text, IsNullable: true, IsUnique: true},
			value:  ptr("Goblin"),
			want:   []string{MsgUnique},
		},
		{
			name:   "unique distinct passes",
			column: core.Column{Type: text, IsUnique: true},
			value:  ptr("Orc"),
			want:   []string{},
		},
		{
			name:   "primary key implies required",
			column: core.Column{Type: text, IsNullable: true, IsPrimaryKey: true},
			value:  nil,
			want:   []string{MsgRequired},
		},
		{
			name:   "primary key implies unique",
			column: core.Column{Type: text, IsNullable: true, IsPrimaryKey: true},
			value:  ptr("Goblin"),
			want:   []string{MsgUnique},
		},
		{
			name:   "primary key on blob accumulates",
			column: core.Column{Type: core.Primitive{Kind: core.PrimitiveImage}, IsPrimaryKey: true},
			value:  nil,
			want:   []string{MsgRequired, MsgPrimaryKeyType},
		},
		{
			name:   "integer format",
			column: core.Column{Type: core.Primitive{Kind: core.PrimitiveInteger}, IsNullable: true},
			value:  ptr("4.5"),
			want:   []string{MsgInvalidInteger},
		},
		{
			name:   "all failures accumulate in order",
			column: core.Column{Type: core.Primitive{Kind: core.PrimitiveInteger}, IsUnique: true},
			value:  ptr("Goblin"),
			want:   []string{MsgUnique, MsgInvalidInteger},
		},
		{
			name:   "single select valid option",
			column: core.Column{Type: core.SingleSelect{ListOID: 7}, IsNullable: true},
			value:  ptr("red"),
			want:   []string{},
		},
		{
			name:   "single select unknown option",
			column: core.Column{Type: core.SingleSelect{ListOID: 7}, IsNullable: true},
			value:  ptr("blue"),
			want:   []string{MsgInvalidOption},
		},
		{
			name:   "multi select valid",
			column: core.Column{Type: core.MultiSelect{ListOID: 7}, IsNullable: true},
			value:  ptr(`["red","green"]`),
			want:   []string{},
		},
		{
			name:   "multi select with unknown option",
			column: core.Column{Type: core.MultiSelect{ListOID: 7}, IsNullable: true},
			value:  ptr(`["red","blue"]`),
			want:   []string{MsgInvalidOption},
		},
		{
			name:   "multi select malformed",
			column: core.Column{Type: core.MultiSelect{ListOID: 7}, IsNullable: true},
			value:  ptr("red"),
			want:   []string{MsgInvalidSelection},
		},
		{
			name:   "reference to existing row",
			column: core.Column{Type: core.Reference{TableOID: 3}, IsNullable: true},
			value:  ptr("10"),
			want:   []string{},
		},
		{
			name:   "reference to missing row",
			column: core.Column{Type: core.Reference{TableOID: 3}, IsNullable: true},
			value:  ptr("12"),
			want:   []string{MsgMissingReference},
		},
		{
			name:   "reference not an oid",
			column: core.Column{Type: core.Reference{TableOID: 3}, IsNullable: true},
			value:  ptr("abc"),
			want:   []string{MsgMissingReference},
		},
		{
			name:   "child table skips nullability",
			column: core.Column{Type: core.ChildTable{TableOID: 3}},
			value:  nil,
			want:   []string{},
		},
		{
			name:   "child table primary key",
			column: core.Column{Type: core.ChildTable{TableOID: 3}, IsPrimaryKey: true},
			value:  nil,
			want:   []string{MsgPrimaryKeyType},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures, err := Cell(context.Background(), lookup, tt.column, 1, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, descriptions(failures))
		})
	}
}

func TestCell_LookupError(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("boom")}
	column := core.Column{Type: core.SingleSelect{ListOID: 1}, IsNullable: true}

	_, err := Cell(context.Background(), lookup, column, 1, ptr("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestFormat(t *testing.T) {
	tests := []struct {
		kind  core.PrimitiveKind
		value string
		want  string
	}{
		{core.PrimitiveBoolean, "true", ""},
		{core.PrimitiveBoolean, "0", ""},
		{core.PrimitiveBoolean, "yes", MsgInvalidBoolean},
		{core.PrimitiveInteger, "-42", ""},
		{core.PrimitiveInteger, "1e3", MsgInvalidInteger},
		{core.PrimitiveNumber, "1e3", ""},
		{core.PrimitiveNumber, "one", MsgInvalidNumber},
		{core.PrimitiveDate, "2024-02-29", ""},
		{core.PrimitiveDate, "2023-02-29", MsgInvalidDate},
		{core.PrimitiveTimestamp, "2024-01-02T03:04:05Z", ""},
		{core.PrimitiveTimestamp, "2024-01-02 03:04", MsgInvalidTimestamp},
		{core.PrimitiveJSON, `{"a":[1,2]}`, ""},
		{core.PrimitiveJSON, `{"a":`, MsgInvalidJSON},
		{core.PrimitiveText, "anything", ""},
		{core.PrimitiveAny, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.kind, tt.value))
		})
	}
}

func TestMultiSelectRoundTrip(t *testing.T) {
	stored := FormatMultiSelect([]string{"a", "b"})
	assert.Equal(t, `["a","b"]`, stored)

	values, err := ParseMultiSelect(stored)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, values)

	assert.Equal(t, "[]", FormatMultiSelect(nil))
}
