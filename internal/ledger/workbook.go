package ledger

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"ledger-reconciliation-backend/internal/services/extract"
)

// Sheet is one tab of an uploaded workbook, held as raw cell text.
type Sheet struct {
	Name string
	Rows [][]string
}

// Cell returns the trimmed value at (row, col), both 0-based, or "" when the
// row is short.
func (s *Sheet) Cell(row, col int) string {
	if row < 0 || row >= len(s.Rows) {
		return ""
	}
	r := s.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// Workbook is an in-memory copy of an uploaded spreadsheet.
type Workbook struct {
	Name   string
	Sheets []Sheet
}

// OpenWorkbook reads every sheet of an xlsx file. Cells are read raw, so
// numbers keep their full precision and dates arrive as Excel serials.
func OpenWorkbook(r io.Reader, name string) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", name, err)
	}
	defer f.Close()

	wb := &Workbook{Name: name}
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q of %s: %w", sheetName, name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: sheetName, Rows: rows})
	}
	return wb, nil
}

// SheetNames lists the sheets in workbook order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, 0, len(w.Sheets))
	for _, s := range w.Sheets {
		names = append(names, s.Name)
	}
	return names
}

// SheetMatcher recognises the sheet a ledger lives in. Patterns are reported
// back to the user when nothing matches.
type SheetMatcher struct {
	Patterns []string
	Match    func(name string) bool
}

// ExactSheet accepts only the given name.
func ExactSheet(name string) SheetMatcher {
	return SheetMatcher{
		Patterns: []string{name},
		Match:    func(s string) bool { return s == name },
	}
}

// LikeSheet accepts an exact name, a sheet starting with the pattern's first
// word (or first five characters for single-word patterns), or a sheet sharing
// the pattern's leading digit, e.g. "3-Lanc. Contab" for "3-Lancamentos Contabeis".
func LikeSheet(patterns ...string) SheetMatcher {
	return SheetMatcher{
		Patterns: patterns,
		Match: func(sheet string) bool {
			lower := strings.ToLower(sheet)
			for _, p := range patterns {
				if sheet == p {
					return true
				}
				prefix := p
				if i := strings.Index(p, " "); i >= 0 {
					prefix = p[:i]
				} else if len(p) > 5 {
					prefix = p[:5]
				}
				if strings.HasPrefix(lower, strings.ToLower(prefix)) {
					return true
				}
				if p != "" && p[0] >= '0' && p[0] <= '9' && sheet != "" && sheet[0] == p[0] {
					return true
				}
			}
			return false
		},
	}
}

// ContainsSheet accepts any sheet whose accent-folded name contains one of
// the fragments.
func ContainsSheet(fragments ...string) SheetMatcher {
	return SheetMatcher{
		Patterns: fragments,
		Match: func(sheet string) bool {
			folded := extract.Fold(sheet)
			for _, f := range fragments {
				if strings.Contains(folded, extract.Fold(f)) {
					return true
				}
			}
			return false
		},
	}
}

// FindSheet returns the first sheet accepted by m, in workbook order.
func (w *Workbook) FindSheet(ledgerName string, m SheetMatcher) (*Sheet, error) {
	for i := range w.Sheets {
		if m.Match(w.Sheets[i].Name) {
			return &w.Sheets[i], nil
		}
	}
	return nil, &SchemaNotFoundError{
		Ledger:   ledgerName,
		Kind:     KindSheet,
		Expected: m.Patterns,
		Found:    w.SheetNames(),
	}
}
