package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// dateLayouts are tried in order; day-first layouts come before ISO ones
// because the ledgers are Brazilian exports.
var dateLayouts = []string{
	"02/01/2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/06",
}

// ParseDate reads a cell as a calendar date. Excel serial numbers are accepted
// as they come out of raw cell reads. The result is truncated to midnight UTC.
func ParseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return DateOnly(x), true
	case *time.Time:
		if x == nil || x.IsZero() {
			return time.Time{}, false
		}
		return DateOnly(*x), true
	case float64:
		return fromSerial(x)
	case int:
		return fromSerial(float64(x))
	case string:
		return parseDateText(x)
	default:
		return time.Time{}, false
	}
}

func parseDateText(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "nat") {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromSerial(f)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOnly(t), true
		}
	}
	return time.Time{}, false
}

func fromSerial(f float64) (time.Time, bool) {
	// 1 is 1900-01-01; anything past year ~2270 is not a date
	if f < 1 || f > 150000 {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, false
	}
	return DateOnly(t), true
}

// DateOnly drops the time of day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	d := DateOnly(a).Sub(DateOnly(b)).Hours() / 24
	if d < 0 {
		d = -d
	}
	return int(d + 0.5)
}
