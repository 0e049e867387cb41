package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/services/extract"
)

// AmountColumn binds a signed amount column to the type it denotes.
type AmountColumn struct {
	Name string
	Type TransactionType
}

// Layout is the column map of a two-column (J/K) ledger.
type Layout struct {
	Ledger string
	Side   Side
	Sheet  SheetMatcher

	// TextColumns are tried in order; the first non-empty cell is the description.
	TextColumns []string
	// Required columns must exist in the header.
	Required []string
	J, K     AmountColumn
	// Prefer names the type that wins when both columns are non-zero.
	Prefer     TransactionType
	DateColumn string
	Identifier extract.RuleSet
}

// FinancialLayout reads the financial (bank) report.
var FinancialLayout = Layout{
	Ledger:      "Relatorio Financeiro",
	Side:        SideFinancial,
	Sheet:       ExactSheet("2-Totais"),
	TextColumns: []string{"PREFIXO/TITULO", "OPERACAO"},
	Required:    []string{"OPERACAO", "PREFIXO/TITULO", "ENTRADAS", "SAIDAS"},
	J:           AmountColumn{Name: "ENTRADAS", Type: Inflow},
	K:           AmountColumn{Name: "SAIDAS", Type: Outflow},
	Prefer:      Outflow,
	DateColumn:  "DATA",
	Identifier:  extract.FinancialIdentifier,
}

// AccountingLayout reads the accounting (general ledger) report.
var AccountingLayout = Layout{
	Ledger:      "Relatorio Contabil",
	Side:        SideAccounting,
	Sheet:       LikeSheet("3-Lancamentos Contabeis", "3-"),
	TextColumns: []string{"HISTORICO"},
	Required:    []string{"HISTORICO", "DEBITO", "CREDITO"},
	J:           AmountColumn{Name: "DEBITO", Type: Debit},
	K:           AmountColumn{Name: "CREDITO", Type: Credit},
	Prefer:      Debit,
	DateColumn:  "DATA",
	Identifier:  extract.AccountingIdentifier,
}

// header maps folded column names to positions.
type header struct {
	row   int
	names []string
	index map[string]int
}

func (h header) col(name string) (int, bool) {
	i, ok := h.index[extract.Fold(name)]
	return i, ok
}

func newHeader(sheet *Sheet, row int) header {
	h := header{row: row, index: map[string]int{}}
	if row < len(sheet.Rows) {
		for i, cell := range sheet.Rows[row] {
			name := strings.TrimSpace(cell)
			h.names = append(h.names, name)
			key := extract.Fold(name)
			if _, dup := h.index[key]; !dup && key != "" {
				h.index[key] = i
			}
		}
	}
	return h
}

// locateHeader accepts the first row as header, or the second one when the
// export carries a title line above the column names.
func locateHeader(sheet *Sheet, l Layout) (header, error) {
	first := newHeader(sheet, 0)
	candidates := []header{first, newHeader(sheet, 1)}
	for _, h := range candidates {
		complete := true
		for _, c := range l.Required {
			if _, ok := h.col(c); !ok {
				complete = false
				break
			}
		}
		if complete {
			return h, nil
		}
	}

	missing := ""
	for _, c := range l.Required {
		if _, ok := first.col(c); !ok {
			missing = c
			break
		}
	}
	return header{}, &SchemaNotFoundError{
		Ledger:   l.Ledger,
		Kind:     KindColumn,
		Expected: l.Required,
		Found:    first.names,
		Missing:  missing,
	}
}

// CheckSchema fails with a *SchemaNotFoundError when wb lacks the sheet or a
// required column of l.
func CheckSchema(wb *Workbook, l Layout) error {
	sheet, err := wb.FindSheet(l.Ledger, l.Sheet)
	if err != nil {
		return err
	}
	_, err = locateHeader(sheet, l)
	return err
}

// Read converts a workbook into the record sequence of one side. Rows with no
// amount or no usable text are dropped; unparseable cells count as zero/absent
// and are logged.
func Read(ctx context.Context, wb *Workbook, l Layout) (*Ledger, error) {
	log := logger.FromContext(ctx).With().Str("ledger", l.Ledger).Logger()

	sheet, err := wb.FindSheet(l.Ledger, l.Sheet)
	if err != nil {
		return nil, err
	}
	h, err := locateHeader(sheet, l)
	if err != nil {
		return nil, err
	}

	var textCols []int
	for _, name := range l.TextColumns {
		if i, ok := h.col(name); ok {
			textCols = append(textCols, i)
		}
	}
	jCol, _ := h.col(l.J.Name)
	kCol, _ := h.col(l.K.Name)
	dateCol, hasDates := -1, false
	if l.DateColumn != "" {
		dateCol, hasDates = h.col(l.DateColumn)
	}

	out := &Ledger{
		Name:     l.Ledger,
		Side:     l.Side,
		HasDates: hasDates,
		SumJ:     decimal.Zero,
		SumK:     decimal.Zero,
	}

	for row := h.row + 1; row < len(sheet.Rows); row++ {
		text := ""
		for _, c := range textCols {
			if v := sheet.Cell(row, c); v != "" && !strings.EqualFold(v, "nan") {
				text = v
				break
			}
		}

		j := parseCell(log, sheet, row, jCol, l.J.Name, &out.SoftFailures)
		k := parseCell(log, sheet, row, kCol, l.K.Name, &out.SoftFailures)

		typ, amount := classify(l, j, k)
		norm := extract.Normalize(text)
		if amount.IsZero() || norm == "" {
			out.Dropped++
			continue
		}

		rec := Record{
			Side:           l.Side,
			RawText:        text,
			NormalizedText: norm,
			NumericToken:   extract.Digits(text),
			Identifier:     l.Identifier.Extract(text),
			Amount:         amount,
			Type:           typ,
			SourceRow:      row + 1,
		}
		if hasDates {
			raw := sheet.Cell(row, dateCol)
			if d, ok := extract.ParseDate(raw); ok {
				rec.Date = d
			} else if raw != "" {
				out.SoftFailures++
				log.Warn().Int("row", row+1).Str("column", l.DateColumn).Str("value", raw).
					Msg("unparseable date treated as absent")
			}
		}

		out.Records = append(out.Records, rec)
		out.SumJ = out.SumJ.Add(j)
		out.SumK = out.SumK.Add(k)
	}

	log.Info().
		Str("sheet", sheet.Name).
		Int("records", len(out.Records)).
		Int("dropped", out.Dropped).
		Int("soft_failures", out.SoftFailures).
		Bool("dated", hasDates).
		Msg("ledger loaded")
	return out, nil
}

// classify picks the column that carries the row's value. The preferred
// column wins whenever it is non-zero.
func classify(l Layout, j, k decimal.Decimal) (TransactionType, decimal.Decimal) {
	preferred, other := l.J, l.K
	pv, ov := j, k
	if l.Prefer == l.K.Type {
		preferred, other = l.K, l.J
		pv, ov = k, j
	}
	if !pv.IsZero() {
		return preferred.Type, pv.Abs()
	}
	return other.Type, ov.Abs()
}
