// Package transform normalizes the field encodings used by the SAP OData
// gateway into canonical Go values.
package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SentinelDate is stored in non-nullable date columns when the remote omits the date.
var SentinelDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

var digitRun = regexp.MustCompile(`\d+`)

// DecodeRemoteDate extracts the millisecond epoch embedded in values such as
// "/Date(1740355200000)/". The first contiguous digit run is used. Returns nil
// when the value is absent or carries no digits.
func DecodeRemoteDate(raw any) *time.Time {
	var s string
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		s = v
	case json.Number:
		s = v.String()
	default:
		return nil
	}

	match := digitRun.FindString(s)
	if match == "" {
		return nil
	}
	ms, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// DateOrSentinel is DecodeRemoteDate for NOT NULL columns.
func DateOrSentinel(raw any) time.Time {
	if t := DecodeRemoteDate(raw); t != nil {
		return *t
	}
	return SentinelDate
}

// DecodeDecimal parses an amount or quantity and rounds it to two places.
// A lone comma is read as the decimal separator; a comma that precedes a
// period is a thousands separator. Anything unparseable yields zero.
func DecodeDecimal(raw any) decimal.Decimal {
	var d decimal.Decimal
	switch v := raw.(type) {
	case nil:
		return decimal.Zero.Round(2)
	case decimal.Decimal:
		d = v
	case string:
		d = parseDecimalString(v)
	case json.Number:
		d = parseDecimalString(v.String())
	case float64:
		d = fromFloat(v)
	case float32:
		d = fromFloat(float64(v))
	case int:
		d = decimal.NewFromInt(int64(v))
	case int32:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	default:
		d = decimal.Zero
	}
	return d.Round(2)
}

func parseDecimalString(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}

	commas := strings.Count(s, ",")
	switch {
	case commas == 0:
	case strings.Contains(s, "."), commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	default:
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// CoerceString renders raw as a string, substituting def for a missing value.
func CoerceString(raw any, def string) string {
	switch v := raw.(type) {
	case nil:
		return def
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// CoerceCode is CoerceString for categorical codes, which are trimmed.
func CoerceCode(raw any, def string) string {
	if raw == nil {
		return def
	}
	return strings.TrimSpace(CoerceString(raw, def))
}
