// Package schema derives column storage types from sample values for sources
// whose shape is only known at runtime.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxShortText is the longest string still stored as VARCHAR.
const MaxShortText = 255

type Kind int

const (
	GenericText Kind = iota
	ShortText
	LongText
	Integer
	Decimal
	Boolean
	DateTime
)

func (k Kind) String() string {
	switch k {
	case ShortText:
		return "short-text"
	case LongText:
		return "long-text"
	case Integer:
		return "integer"
	case Decimal:
		return "decimal"
	case Boolean:
		return "boolean"
	case DateTime:
		return "datetime"
	default:
		return "generic-text"
	}
}

// ColumnType is an inferred storage type. Length is only meaningful for ShortText.
type ColumnType struct {
	Kind   Kind
	Length int
}

func (c ColumnType) String() string {
	switch c.Kind {
	case ShortText:
		return fmt.Sprintf("short-text(%d)", c.Length)
	case Decimal:
		return "decimal(18,2)"
	default:
		return c.Kind.String()
	}
}

// SQL renders the Postgres column type. Short text is declared at the short
// text ceiling so later rows with longer values still fit.
func (c ColumnType) SQL() string {
	switch c.Kind {
	case ShortText:
		return fmt.Sprintf("VARCHAR(%d)", MaxShortText)
	case Integer:
		return "BIGINT"
	case Decimal:
		return "NUMERIC(18,2)"
	case Boolean:
		return "BOOLEAN"
	case DateTime:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// Column is one inferred column of a dynamic table.
type Column struct {
	Name string
	Type ColumnType
}

// Infer maps a single sample value to a column type.
func Infer(v any) ColumnType {
	switch val := v.(type) {
	case nil:
		return ColumnType{Kind: GenericText}
	case string:
		n := utf8.RuneCountInString(val)
		if n > MaxShortText {
			return ColumnType{Kind: LongText}
		}
		return ColumnType{Kind: ShortText, Length: n}
	case json.Number:
		return inferNumber(val)
	case float64:
		return inferFloat(val)
	case float32:
		return inferFloat(float64(val))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return ColumnType{Kind: Integer}
	case decimal.Decimal:
		if val.IsInteger() {
			return ColumnType{Kind: Integer}
		}
		return ColumnType{Kind: Decimal}
	case bool:
		return ColumnType{Kind: Boolean}
	case time.Time, *time.Time:
		return ColumnType{Kind: DateTime}
	default:
		// maps and slices are stored as their JSON text
		return ColumnType{Kind: GenericText}
	}
}

func inferNumber(n json.Number) ColumnType {
	if _, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return ColumnType{Kind: Integer}
	}
	f, err := n.Float64()
	if err != nil {
		return ColumnType{Kind: GenericText}
	}
	return inferFloat(f)
}

func inferFloat(f float64) ColumnType {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ColumnType{Kind: GenericText}
	}
	if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
		return ColumnType{Kind: Integer}
	}
	return ColumnType{Kind: Decimal}
}

// InferColumns types every key of a single sample row, sorted by column name.
// Only the sample is inspected; later rows are never reconciled against it.
func InferColumns(sample map[string]any) []Column {
	names := make([]string, 0, len(sample))
	for name := range sample {
		names = append(names, name)
	}
	sort.Strings(names)

	columns := make([]Column, 0, len(names))
	for _, name := range names {
		columns = append(columns, Column{Name: name, Type: Infer(sample[name])})
	}
	return columns
}
