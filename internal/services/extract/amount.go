package extract

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a cell value to an exact decimal. Values that cannot be
// parsed become zero so a single bad cell never aborts a batch.
func ParseAmount(v any) decimal.Decimal {
	d, _ := ParseAmountE(v)
	return d
}

// ParseAmountE is ParseAmount with the parse error exposed, for callers that log
// soft failures. The returned value is zero whenever err is non-nil.
func ParseAmountE(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, nil
		}
		return *x, nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case string:
		return parseAmountText(x)
	case fmt.Stringer:
		return parseAmountText(x.String())
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %T", v)
	}
}

func fromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) {
		return decimal.Zero, nil
	}
	if math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("infinite amount")
	}
	return decimal.NewFromFloat(f), nil
}

func parseAmountText(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") || s == "-" {
		return decimal.Zero, nil
	}

	s = strings.ReplaceAll(s, "R$", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\t':
			return -1
		}
		return r
	}, s)

	// trailing debit/credit marker
	sign := decimal.NewFromInt(1)
	switch {
	case strings.HasSuffix(s, "D") || strings.HasSuffix(s, "d"):
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "C") || strings.HasSuffix(s, "c"):
		s = s[:len(s)-1]
		sign = decimal.NewFromInt(-1)
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}
	s = strings.TrimPrefix(s, "+")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return d.Mul(sign), nil
}

// Cents returns the amount rounded to two places as an integer number of cents.
func Cents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}
