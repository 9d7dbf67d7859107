package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leaptable/internal/config"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

func TestRenderer_Table(t *testing.T) {
	header := []string{"OID", "NAME"}
	rows := [][]any{{int64(1), "Monsters"}, {int64(2), "Items"}}
	records := []tableView{{OID: 1, Name: "Monsters"}, {OID: 2, Name: "Items"}}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewRenderer(&buf, config.OutputTable).Table(header, rows, records))
		out := buf.String()
		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "Monsters")
		assert.Contains(t, out, "(2 rows)")
	})

	t.Run("empty table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewRenderer(&buf, "").Table(header, nil, []tableView{}))
		assert.Equal(t, "(0 rows)\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewRenderer(&buf, config.OutputJSON).Table(header, rows, records))
		var got []tableView
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, records, got)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewRenderer(&buf, config.OutputYAML).Table(header, rows, records))
		var got []tableView
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, records, got)
	})
}

func TestRenderer_Result(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, config.OutputTable).Result(map[string]any{"oid": 3}, "Created table 3"))
	assert.Equal(t, "Created table 3\n", buf.String())

	buf.Reset()
	require.NoError(t, NewRenderer(&buf, config.OutputJSON).Result(map[string]any{"oid": 3}, "Created table 3"))
	assert.JSONEq(t, `{"oid": 3}`, buf.String())

	buf.Reset()
	require.NoError(t, NewRenderer(&buf, config.OutputTable).Document(map[string]any{"oid": 3}))
	assert.Equal(t, "oid: 3\n", buf.String(), "documents fall back to YAML in table mode")
}

func TestView(t *testing.T) {
	value := "12"
	tests := []struct {
		name string
		in   any
		want any
	}{
		{
			name: "table summary",
			in:   core.TableSummary{OID: 1, Name: "Monsters"},
			want: tableView{OID: 1, Name: "Monsters"},
		},
		{
			name: "column",
			in: core.Column{OID: 4, TableOID: 1, Name: "Level", Width: 100,
				Type: core.Primitive{Kind: core.PrimitiveInteger}, IsNullable: true},
			want: columnView{OID: 4, TableOID: 1, Name: "Level", Width: 100,
				Type: core.TypeSpec{Mode: "primitive", Kind: "integer"}, IsNullable: true},
		},
		{
			name: "cell",
			in:   core.CellValue{ColumnOID: 4, ColumnName: "Level", TrueValue: &value, DisplayValue: &value},
			want: cellView{ColumnOID: 4, Column: "Level", TrueValue: &value, DisplayValue: &value},
		},
		{
			name: "master option",
			in:   core.MasterListOption{OID: 2, Name: "Items", HierarchyLevel: 0, IsDisabled: true},
			want: optionView{OID: 2, Name: "Items", IsDisabled: ptr(true)},
		},
		{
			name: "blob",
			in:   &core.BlobInfo{FileName: "notes.txt", Size: 5},
			want: blobView{FileName: "notes.txt", Size: 5},
		},
		{
			name: "passthrough",
			in:   int64(7),
			want: int64(7),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, view(tt.in))
		})
	}
}

func TestParseOID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "1", want: 1},
		{in: "42", want: 42},
		{in: "0", wantErr: true},
		{in: "-3", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOID("table oid", tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "table oid")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDropdownValues(t *testing.T) {
	got := parseDropdownValues([]string{"red", "g=Green", "b=Blue=ish"})
	assert.Equal(t, []core.DropdownValue{
		{TrueValue: "red", DisplayValue: "red"},
		{TrueValue: "g", DisplayValue: "Green"},
		{TrueValue: "b", DisplayValue: "Blue=ish"},
	}, got)
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "Weapons", indent(0, "Weapons"))
	assert.Equal(t, "Weapons", indent(1, "Weapons"))
	assert.Equal(t, "    Swords", indent(3, "Swords"))
}

func ptr[T any](v T) *T { return &v }
