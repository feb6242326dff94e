package records

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"sap-sales-sync/internal/schema"

	"github.com/shopspring/decimal"
)

// Scalar is a single dynamic column value. The zero Scalar is a typed null.
type Scalar struct {
	Value any
	Valid bool
}

// Null is the explicit empty marker for absent dynamic values.
func Null() Scalar { return Scalar{} }

// Of wraps a non-null value.
func Of(v any) Scalar { return Scalar{Value: v, Valid: true} }

// IsNull reports whether the scalar carries no value.
func (s Scalar) IsNull() bool { return !s.Valid }

// ScalarFor converts a decoded JSON value into the Go value matching the
// column kind. Values that do not fit the kind are kept as text and left for
// the store to reject.
func ScalarFor(kind schema.Kind, v any) Scalar {
	if v == nil {
		return Null()
	}

	switch kind {
	case schema.Integer:
		if n, ok := toInt64(v); ok {
			return Of(n)
		}
	case schema.Decimal:
		if d, ok := toDecimal(v); ok {
			return Of(d)
		}
	case schema.Boolean:
		if b, ok := v.(bool); ok {
			return Of(b)
		}
	}
	return Of(toText(v))
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case float64:
		return floatToInt64(n)
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// floatToInt64 accepts whole numbers strictly inside the int64 range.
func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case decimal.Decimal:
		return n, true
	}
	return decimal.Zero, false
}

func toText(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(s)
	}
}

// DynamicRecord is a row of a runtime-provisioned table.
type DynamicRecord struct {
	Columns    []string
	Values     map[string]Scalar
	PrimaryKey string
}

// NewDynamicRecord projects raw onto columns. Keys of raw that are not
// columns are dropped; columns missing from raw become null.
func NewDynamicRecord(raw map[string]any, columns []schema.Column, primaryKey string) DynamicRecord {
	rec := DynamicRecord{
		Columns:    make([]string, 0, len(columns)),
		Values:     make(map[string]Scalar, len(columns)),
		PrimaryKey: primaryKey,
	}
	for _, col := range columns {
		rec.Columns = append(rec.Columns, col.Name)
		rec.Values[col.Name] = ScalarFor(col.Type.Kind, raw[col.Name])
	}
	return rec
}

func (DynamicRecord) record() {}

func (d DynamicRecord) Key() string {
	v, ok := d.Values[d.PrimaryKey]
	if !ok || v.IsNull() {
		return ""
	}
	return toText(v.Value)
}

// Params returns the values in column order. Nulls are passed as nil.
func (d DynamicRecord) Params() []Param {
	params := make([]Param, 0, len(d.Columns))
	for _, col := range d.Columns {
		v := d.Values[col]
		if v.IsNull() {
			params = append(params, Param{Column: col, Value: nil})
			continue
		}
		params = append(params, Param{Column: col, Value: v.Value})
	}
	return params
}
