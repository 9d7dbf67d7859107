// Package validation checks cell values against their column's constraints.
//
// Checks never fail a write. They produce advisory failures that are stored
// with the cell and shown until the value is corrected.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

// Failure descriptions.
const (
	MsgRequired          = "value is required."
	MsgUnique            = "value must be unique."
	MsgPrimaryKeyType    = "primary key column must have a stable, non-blob type."
	MsgInvalidOption     = "value is not a valid option."
	MsgInvalidSelection  = "value must be a list of options."
	MsgMissingReference  = "value does not reference an existing row."
	MsgInvalidBoolean    = "value is not a valid boolean."
	MsgInvalidInteger    = "value is not a valid integer."
	MsgInvalidNumber     = "value is not a valid number."
	MsgInvalidDate       = "value is not a valid date (YYYY-MM-DD)."
	MsgInvalidTimestamp  = "value is not a valid timestamp (RFC 3339)."
	MsgInvalidJSON       = "value is not valid JSON."
	MsgNotStoredAsScalar = "column does not store a value."
)

// DateLayout is the canonical stored form of Date values.
const DateLayout = "2006-01-02"

// Lookup answers the questions validation needs about stored state.
type Lookup interface {
	// OptionExists reports whether value is a true value of the option list.
	OptionExists(ctx context.Context, listOID int64, value string) (bool, error)
	// RowExists reports whether rowOID is a live row visible in tableOID.
	RowExists(ctx context.Context, tableOID, rowOID int64) (bool, error)
	// IsDuplicate reports whether another live row stores value in column.
	IsDuplicate(ctx context.Context, column core.Column, rowOID int64, value string) (bool, error)
}

// Cell validates value for the given row and column.
// Checks run in a fixed order and all applicable failures are accumulated:
// nullability, uniqueness, primary-key type, then type-specific checks.
// The returned error reports lookup failures only.
func Cell(ctx context.Context, lookup Lookup, column core.Column, rowOID int64, value *string) ([]core.FailedValidation, error) {
	var failures []core.FailedValidation
	add := func(msg string) {
		failures = append(failures, core.FailedValidation{Description: msg})
	}

	if _, ok := column.Type.(core.ChildTable); ok {
		// Child tables own rows rather than a value; only the key check applies.
		if column.IsPrimaryKey {
			add(MsgPrimaryKeyType)
		}
		return failures, nil
	}

	if value == nil {
		if column.Required() {
			add(MsgRequired)
		}
	} else if column.MustBeUnique() {
		dup, err := lookup.IsDuplicate(ctx, column, rowOID, *value)
		if err != nil {
			return nil, fmt.Errorf("failed to check uniqueness: %w", err)
		}
		if dup {
			add(MsgUnique)
		}
	}

	if column.IsPrimaryKey && !core.IsStableKey(column.Type) {
		add(MsgPrimaryKeyType)
	}

	if value == nil {
		return failures, nil
	}

	msg, err := typeCheck(ctx, lookup, column.Type, *value)
	if err != nil {
		return nil, err
	}
	if msg != "" {
		add(msg)
	}
	return failures, nil
}

// typeCheck returns a failure description, or "" when value fits the type.
func typeCheck(ctx context.Context, lookup Lookup, t core.ColumnType, value string) (string, error) {
	switch v := t.(type) {
	case core.Primitive:
		return Format(v.Kind, value), nil
	case core.SingleSelect:
		ok, err := lookup.OptionExists(ctx, v.ListOID, value)
		if err != nil {
			return "", fmt.Errorf("failed to check option: %w", err)
		}
		if !ok {
			return MsgInvalidOption, nil
		}
		return "", nil
	case core.MultiSelect:
		values, err := ParseMultiSelect(value)
		if err != nil {
			return MsgInvalidSelection, nil
		}
		for _, item := range values {
			ok, err := lookup.OptionExists(ctx, v.ListOID, item)
			if err != nil {
				return "", fmt.Errorf("failed to check option: %w", err)
			}
			if !ok {
				return MsgInvalidOption, nil
			}
		}
		return "", nil
	case core.Reference:
		return checkRow(ctx, lookup, v.TableOID, value)
	case core.ChildObject:
		return checkRow(ctx, lookup, v.TableOID, value)
	case core.ChildTable:
		return MsgNotStoredAsScalar, nil
	default:
		panic(fmt.Sprintf("unhandled column type %T", t))
	}
}

func checkRow(ctx context.Context, lookup Lookup, tableOID int64, value string) (string, error) {
	rowOID, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return MsgMissingReference, nil
	}
	ok, err := lookup.RowExists(ctx, tableOID, rowOID)
	if err != nil {
		return "", fmt.Errorf("failed to check reference: %w", err)
	}
	if !ok {
		return MsgMissingReference, nil
	}
	return "", nil
}

// Format checks that value is in the canonical stored form of kind.
// It returns a failure description, or "" when the value is well formed.
func Format(kind core.PrimitiveKind, value string) string {
	switch kind {
	case core.PrimitiveBoolean:
		switch strings.ToLower(value) {
		case "true", "false", "1", "0":
			return ""
		}
		return MsgInvalidBoolean
	case core.PrimitiveInteger:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return MsgInvalidInteger
		}
	case core.PrimitiveNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return MsgInvalidNumber
		}
	case core.PrimitiveDate:
		if _, err := time.Parse(DateLayout, value); err != nil {
			return MsgInvalidDate
		}
	case core.PrimitiveTimestamp:
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			return MsgInvalidTimestamp
		}
	case core.PrimitiveJSON:
		if !json.Valid([]byte(value)) {
			return MsgInvalidJSON
		}
	case core.PrimitiveAny, core.PrimitiveText, core.PrimitiveFile, core.PrimitiveImage:
	}
	return ""
}

// ParseMultiSelect decodes the stored form of a multi-select value,
// a JSON array of option true values.
func ParseMultiSelect(value string) ([]string, error) {
	var values []string
	if err := json.Unmarshal([]byte(value), &values); err != nil {
		return nil, fmt.Errorf("invalid multi-select value: %w", err)
	}
	return values, nil
}

// FormatMultiSelect encodes option true values into the stored multi-select form.
func FormatMultiSelect(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}
