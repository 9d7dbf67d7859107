package core

import (
	"fmt"
	"strings"
)

// PrimitiveKind enumerates the scalar kinds a primitive column can store.
type PrimitiveKind int

// Primitive kinds. The numeric values are persisted and must not be reordered.
const (
	PrimitiveAny PrimitiveKind = iota
	PrimitiveBoolean
	PrimitiveInteger
	PrimitiveNumber
	PrimitiveDate
	PrimitiveTimestamp
	PrimitiveText
	PrimitiveJSON
	PrimitiveFile
	PrimitiveImage
)

var primitiveKindNames = [...]string{
	PrimitiveAny:       "any",
	PrimitiveBoolean:   "boolean",
	PrimitiveInteger:   "integer",
	PrimitiveNumber:    "number",
	PrimitiveDate:      "date",
	PrimitiveTimestamp: "timestamp",
	PrimitiveText:      "text",
	PrimitiveJSON:      "json",
	PrimitiveFile:      "file",
	PrimitiveImage:     "image",
}

func (k PrimitiveKind) String() string {
	if k < 0 || int(k) >= len(primitiveKindNames) {
		return fmt.Sprintf("PrimitiveKind(%d)", int(k))
	}
	return primitiveKindNames[k]
}

// IsBlob reports whether values of this kind are stored as binary payloads.
func (k PrimitiveKind) IsBlob() bool {
	return k == PrimitiveFile || k == PrimitiveImage
}

// ParsePrimitiveKind parses a kind name (case-insensitive).
func ParsePrimitiveKind(s string) (PrimitiveKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range primitiveKindNames {
		if n == name {
			return PrimitiveKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown primitive kind %q", s)
}

// TypeMode identifies which ColumnType variant a column uses.
type TypeMode int

// Type modes. The numeric values are persisted and must not be reordered.
const (
	ModePrimitive TypeMode = iota
	ModeSingleSelect
	ModeMultiSelect
	ModeReference
	ModeChildObject
	ModeChildTable
)

var typeModeNames = [...]string{
	ModePrimitive:    "primitive",
	ModeSingleSelect: "singleSelectDropdown",
	ModeMultiSelect:  "multiSelectDropdown",
	ModeReference:    "reference",
	ModeChildObject:  "childObject",
	ModeChildTable:   "childTable",
}

func (m TypeMode) String() string {
	if m < 0 || int(m) >= len(typeModeNames) {
		return fmt.Sprintf("TypeMode(%d)", int(m))
	}
	return typeModeNames[m]
}

// ParseTypeMode parses a mode name (case-insensitive).
func ParseTypeMode(s string) (TypeMode, error) {
	name := strings.TrimSpace(s)
	for i, n := range typeModeNames {
		if strings.EqualFold(n, name) {
			return TypeMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown column type mode %q", s)
}

// ColumnType is the closed set of column type variants.
// The unexported marker method keeps the set closed to this package;
// consumers switch over the six concrete types below.
type ColumnType interface {
	Mode() TypeMode
	String() string
	columnType()
}

// Primitive stores a serialized scalar or a blob.
type Primitive struct {
	Kind PrimitiveKind
}

// SingleSelect holds exactly one value from a dropdown option list.
type SingleSelect struct {
	ListOID int64
}

// MultiSelect holds zero or more values from a dropdown option list.
type MultiSelect struct {
	ListOID int64
}

// Reference is a foreign key to a row of another table.
type Reference struct {
	TableOID int64
}

// ChildObject is an owned one-to-one row of another table.
type ChildObject struct {
	TableOID int64
}

// ChildTable is an owned one-to-many row set of another table.
type ChildTable struct {
	TableOID int64
}

func (Primitive) Mode() TypeMode    { return ModePrimitive }
func (SingleSelect) Mode() TypeMode { return ModeSingleSelect }
func (MultiSelect) Mode() TypeMode  { return ModeMultiSelect }
func (Reference) Mode() TypeMode    { return ModeReference }
func (ChildObject) Mode() TypeMode  { return ModeChildObject }
func (ChildTable) Mode() TypeMode   { return ModeChildTable }

func (t Primitive) String() string    { return t.Kind.String() }
func (t SingleSelect) String() string { return fmt.Sprintf("select(%d)", t.ListOID) }
func (t MultiSelect) String() string  { return fmt.Sprintf("multiselect(%d)", t.ListOID) }
func (t Reference) String() string    { return fmt.Sprintf("reference(%d)", t.TableOID) }
func (t ChildObject) String() string  { return fmt.Sprintf("object(%d)", t.TableOID) }
func (t ChildTable) String() string   { return fmt.Sprintf("table(%d)", t.TableOID) }

func (Primitive) columnType()    {}
func (SingleSelect) columnType() {}
func (MultiSelect) columnType()  {}
func (Reference) columnType()    {}
func (ChildObject) columnType()  {}
func (ChildTable) columnType()   {}

// EncodeColumnType flattens a ColumnType into its persisted (mode, argument) pair.
// The argument is the primitive kind, the dropdown list OID or the target table OID.
func EncodeColumnType(t ColumnType) (TypeMode, int64) {
	switch v := t.(type) {
	case Primitive:
		return ModePrimitive, int64(v.Kind)
	case SingleSelect:
		return ModeSingleSelect, v.ListOID
	case MultiSelect:
		return ModeMultiSelect, v.ListOID
	case Reference:
		return ModeReference, v.TableOID
	case ChildObject:
		return ModeChildObject, v.TableOID
	case ChildTable:
		return ModeChildTable, v.TableOID
	default:
		panic(fmt.Sprintf("unhandled column type %T", t))
	}
}

// DecodeColumnType rebuilds a ColumnType from its persisted pair.
func DecodeColumnType(mode TypeMode, arg int64) (ColumnType, error) {
	switch mode {
	case ModePrimitive:
		if arg < 0 || arg >= int64(len(primitiveKindNames)) {
			return nil, fmt.Errorf("unknown primitive kind %d", arg)
		}
		return Primitive{Kind: PrimitiveKind(arg)}, nil
	case ModeSingleSelect:
		return SingleSelect{ListOID: arg}, nil
	case ModeMultiSelect:
		return MultiSelect{ListOID: arg}, nil
	case ModeReference:
		return Reference{TableOID: arg}, nil
	case ModeChildObject:
		return ChildObject{TableOID: arg}, nil
	case ModeChildTable:
		return ChildTable{TableOID: arg}, nil
	default:
		return nil, fmt.Errorf("unknown column type mode %d", int(mode))
	}
}

// TargetTableOID returns the table a relational column points at.
func TargetTableOID(t ColumnType) (int64, bool) {
	switch v := t.(type) {
	case Reference:
		return v.TableOID, true
	case ChildObject:
		return v.TableOID, true
	case ChildTable:
		return v.TableOID, true
	case Primitive, SingleSelect, MultiSelect:
		return 0, false
	default:
		panic(fmt.Sprintf("unhandled column type %T", t))
	}
}

// DropdownListOID returns the option list a select column draws from.
func DropdownListOID(t ColumnType) (int64, bool) {
	switch v := t.(type) {
	case SingleSelect:
		return v.ListOID, true
	case MultiSelect:
		return v.ListOID, true
	case Primitive, Reference, ChildObject, ChildTable:
		return 0, false
	default:
		panic(fmt.Sprintf("unhandled column type %T", t))
	}
}

// IsStableKey reports whether a column of this type may serve as a primary key.
// Blobs, multi-valued and owned relational types cannot.
func IsStableKey(t ColumnType) bool {
	switch v := t.(type) {
	case Primitive:
		return !v.Kind.IsBlob()
	case SingleSelect, Reference:
		return true
	case MultiSelect, ChildObject, ChildTable:
		return false
	default:
		panic(fmt.Sprintf("unhandled column type %T", t))
	}
}

// TypeSpec is the serializable form of a ColumnType used in operation payloads.
type TypeSpec struct {
	Mode     string `json:"mode" yaml:"mode" mapstructure:"mode"`
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty" mapstructure:"kind"`
	ListOID  int64  `json:"listOid,omitempty" yaml:"listOid,omitempty" mapstructure:"listOid"`
	TableOID int64  `json:"tableOid,omitempty" yaml:"tableOid,omitempty" mapstructure:"tableOid"`
}

// SpecOf converts a ColumnType into its serializable form.
func SpecOf(t ColumnType) TypeSpec {
	switch v := t.(type) {
	case Primitive:
		return TypeSpec{Mode: ModePrimitive.String(), Kind: v.Kind.String()}
	case SingleSelect:
		return TypeSpec{Mode: ModeSingleSelect.String(), ListOID: v.ListOID}
	case MultiSelect:
		return TypeSpec{Mode: ModeMultiSelect.String(), ListOID: v.ListOID}
	case Reference:
		return TypeSpec{Mode: ModeReference.String(), TableOID: v.TableOID}
	case ChildObject:
		return TypeSpec{Mode: ModeChildObject.String(), TableOID: v.TableOID}
	case ChildTable:
		return TypeSpec{Mode: ModeChildTable.String(), TableOID: v.TableOID}
	default:
		panic(fmt.Sprintf("unhandled column type %T", t))
	}
}

// ColumnType converts s back into a ColumnType.
// An empty mode defaults to primitive; an empty kind defaults to text.
func (s TypeSpec) ColumnType() (ColumnType, error) {
	mode := ModePrimitive
	if s.Mode != "" {
		m, err := ParseTypeMode(s.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	switch mode {
	case ModePrimitive:
		if s.Kind == "" {
			return Primitive{Kind: PrimitiveText}, nil
		}
		kind, err := ParsePrimitiveKind(s.Kind)
		if err != nil {
			return nil, err
		}
		return Primitive{Kind: kind}, nil
	case ModeSingleSelect:
		return SingleSelect{ListOID: s.ListOID}, nil
	case ModeMultiSelect:
		return MultiSelect{ListOID: s.ListOID}, nil
	case ModeReference, ModeChildObject, ModeChildTable:
		if s.TableOID == 0 {
			return nil, fmt.Errorf("column type %s requires a tableOid", mode)
		}
		return DecodeColumnType(mode, s.TableOID)
	default:
		return nil, fmt.Errorf("unknown column type mode %d", int(mode))
	}
}
