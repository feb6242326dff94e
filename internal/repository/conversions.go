package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func uuidToPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func stringToPgText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func timeToPgTimestamp(t *time.Time) pgtype.Timestamp {
	if t == nil {
		return pgtype.Timestamp{Valid: false}
	}
	return pgtype.Timestamp{Time: *t, Valid: true}
}

func timeToPgTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func decimalToPgNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// encodeParam maps record values onto pgtype values pgx encodes natively.
func encodeParam(v any) any {
	switch val := v.(type) {
	case decimal.Decimal:
		return decimalToPgNumeric(val)
	case *decimal.Decimal:
		if val == nil {
			return pgtype.Numeric{}
		}
		return decimalToPgNumeric(*val)
	case time.Time:
		return timeToPgTimestamp(&val)
	case *time.Time:
		return timeToPgTimestamp(val)
	case *string:
		return stringToPgText(val)
	default:
		return v
	}
}
