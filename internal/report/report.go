// Package report renders reconciliation tables into a plain xlsx workbook.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Sheet is one tab of the output. Rows are written from A1 downwards; a nil
// row leaves a blank line.
type Sheet struct {
	Name string
	Rows [][]any
}

// Write renders the sheets, in order, as an xlsx document.
func Write(w io.Writer, sheets []Sheet) error {
	f, err := build(sheets)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Save writes the report to path, creating the parent directory. A failed
// write leaves no file behind.
func Save(path string, sheets []Sheet) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	if err := Write(out, sheets); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("save report %s: %w", path, err)
	}
	return nil
}

func build(sheets []Sheet) (*excelize.File, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("report has no sheets")
	}
	f := excelize.NewFile()
	first := f.GetSheetName(0)

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(first, s.Name); err != nil {
				f.Close()
				return nil, fmt.Errorf("rename sheet %q: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %q: %w", s.Name, err)
		}

		for r, row := range s.Rows {
			if row == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				f.Close()
				return nil, err
			}
			values := make([]any, len(row))
			for c, v := range row {
				values[c] = cellValue(v)
			}
			if err := f.SetSheetRow(s.Name, cell, &values); err != nil {
				f.Close()
				return nil, fmt.Errorf("write %s!%s: %w", s.Name, cell, err)
			}
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func cellValue(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64()
	case decimal.NullDecimal:
		if !x.Valid {
			return ""
		}
		return x.Decimal.InexactFloat64()
	case time.Time:
		return FormatDate(x)
	default:
		return v
	}
}

// FormatDate prints a date as dd/mm/yyyy, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

// FormatBRL prints an amount in Brazilian currency notation, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	sign := ""
	if d.IsNegative() && !d.Round(2).IsZero() {
		sign = "-"
	}
	return "R$ " + sign + b.String() + "," + frac
}
