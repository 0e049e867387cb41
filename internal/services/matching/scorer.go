package matching

import (
	"strings"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/services/extract"
)

const (
	startBonus      = 0.2
	numericBonus    = 0.3
	identifierBonus = 0.5
	sameDayBonus    = 0.5
	nextDayBonus    = 0.3

	minIdentifierLen = 6
	maxDayGap        = 1
)

// Score rates how well an accounting record describes a financial one.
// Coverage is the share of the accounting key covered by the financial key;
// the bonuses reward a common start, shared numbers, a shared identifier and
// date proximity.
func Score(fin, acc *ledger.Record, useDates bool) float64 {
	fk, ak := fin.NormalizedText, acc.NormalizedText
	if fk == "" || ak == "" {
		return 0
	}

	score := min(float64(len(fk))/float64(max(len(ak), 1)), 1.0)
	if strings.HasPrefix(ak, fk) {
		score += startBonus
	}
	if numericMatch(fin, acc) {
		score += numericBonus
	}
	if identifierMatch(fin, acc) {
		score += identifierBonus
	}
	if useDates && fin.HasDate() && acc.HasDate() {
		switch extract.DaysBetween(fin.Date, acc.Date) {
		case 0:
			score += sameDayBonus
		case 1:
			score += nextDayBonus
		}
	}
	return score
}

// Eligible applies the hard constraints: counterpart type, amount within tol,
// dates at most one day apart when both are known, and at least one textual
// link (key containment, numeric substring or identifier substring).
func Eligible(fin, acc *ledger.Record, tol decimal.Decimal, useDates bool) bool {
	if acc.Type != fin.Type.Counterpart() {
		return false
	}
	if !WithinTolerance(fin.Amount, acc.Amount, tol) {
		return false
	}
	if useDates && fin.HasDate() && acc.HasDate() && extract.DaysBetween(fin.Date, acc.Date) > maxDayGap {
		return false
	}
	textMatch := fin.NormalizedText != "" && strings.Contains(acc.NormalizedText, fin.NormalizedText)
	return textMatch || numericMatch(fin, acc) || identifierMatch(fin, acc)
}

// WithinTolerance reports |a-b| <= tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

func numericMatch(fin, acc *ledger.Record) bool {
	return fin.NumericToken != "" && acc.NumericToken != "" &&
		strings.Contains(acc.NumericToken, fin.NumericToken)
}

func identifierMatch(fin, acc *ledger.Record) bool {
	return len(fin.Identifier) >= minIdentifierLen && acc.Identifier != "" &&
		strings.Contains(acc.Identifier, fin.Identifier)
}
