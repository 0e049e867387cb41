package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/services/extract"
)

// JournalLine is one row of the accounting journal used by the invoice and
// receipt netting.
type JournalLine struct {
	Row            int
	Date           time.Time
	Lot            string
	Description    string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	RunningBalance string
}

// Receivable is one row of the receivables (titulos a receber) report.
type Receivable struct {
	Row       int
	Reference string
	Overdue   decimal.Decimal
	Current   decimal.Decimal
}

// Fixed 0-based positions of the journal export: header on row 2, data from
// row 3, columns B, C, D, J, K and L.
const (
	journalFirstRow   = 2
	journalDateCol    = 1
	journalLotCol     = 2
	journalDescCol    = 3
	journalDebitCol   = 9
	journalCreditCol  = 10
	journalBalanceCol = 11
)

// Receivables report: data from row 2, reference in B, aging in K and L.
const (
	receivableFirstRow   = 1
	receivableRefCol     = 1
	receivableOverdueCol = 10
	receivableCurrentCol = 11
)

const (
	JournalLedger     = "Razao Contabil"
	ReceivablesLedger = "Titulos a Receber"
)

var (
	JournalSheet    = ContainsSheet("Lancamentos Contabeis")
	ReceivableSheet = ContainsSheet("Titulos", "2-")
)

// CheckJournal fails with a *SchemaNotFoundError when wb has no journal sheet.
func CheckJournal(wb *Workbook) error {
	_, err := wb.FindSheet(JournalLedger, JournalSheet)
	return err
}

// CheckReceivables fails with a *SchemaNotFoundError when wb has no
// receivables sheet.
func CheckReceivables(wb *Workbook) error {
	_, err := wb.FindSheet(ReceivablesLedger, ReceivableSheet)
	return err
}

// ReadJournal loads every journal line; date-window filtering is left to the
// caller.
func ReadJournal(ctx context.Context, wb *Workbook) ([]JournalLine, error) {
	const name = JournalLedger
	log := logger.FromContext(ctx).With().Str("ledger", name).Logger()

	sheet, err := wb.FindSheet(name, JournalSheet)
	if err != nil {
		return nil, err
	}

	var (
		lines []JournalLine
		soft  int
	)
	for row := journalFirstRow; row < len(sheet.Rows); row++ {
		line := JournalLine{
			Row:            row + 1,
			Lot:            sheet.Cell(row, journalLotCol),
			Description:    sheet.Cell(row, journalDescCol),
			Debit:          parseCell(log, sheet, row, journalDebitCol, "DEBITO", &soft),
			Credit:         parseCell(log, sheet, row, journalCreditCol, "CREDITO", &soft),
			RunningBalance: sheet.Cell(row, journalBalanceCol),
		}
		raw := sheet.Cell(row, journalDateCol)
		if d, ok := extract.ParseDate(raw); ok {
			line.Date = d
		} else if raw != "" {
			soft++
			log.Warn().Int("row", row+1).Str("value", raw).Msg("unparseable journal date")
		}
		lines = append(lines, line)
	}

	log.Info().Str("sheet", sheet.Name).Int("lines", len(lines)).Int("soft_failures", soft).
		Msg("journal loaded")
	return lines, nil
}

// ReadReceivables loads the receivables report. Rows without a reference still
// contribute to the aging sums.
func ReadReceivables(ctx context.Context, wb *Workbook) ([]Receivable, error) {
	const name = ReceivablesLedger
	log := logger.FromContext(ctx).With().Str("ledger", name).Logger()

	sheet, err := wb.FindSheet(name, ReceivableSheet)
	if err != nil {
		return nil, err
	}

	var (
		rows []Receivable
		soft int
	)
	for row := receivableFirstRow; row < len(sheet.Rows); row++ {
		rows = append(rows, Receivable{
			Row:       row + 1,
			Reference: sheet.Cell(row, receivableRefCol),
			Overdue:   parseCell(log, sheet, row, receivableOverdueCol, "K", &soft),
			Current:   parseCell(log, sheet, row, receivableCurrentCol, "L", &soft),
		})
	}

	log.Info().Str("sheet", sheet.Name).Int("rows", len(rows)).Int("soft_failures", soft).
		Msg("receivables loaded")
	return rows, nil
}

func parseCell(log zerolog.Logger, sheet *Sheet, row, col int, column string, soft *int) decimal.Decimal {
	raw := sheet.Cell(row, col)
	v, err := extract.ParseAmountE(raw)
	if err != nil {
		*soft++
		log.Warn().Int("row", row+1).Str("column", column).Str("value", raw).
			Msg("unparseable amount treated as zero")
	}
	return v
}
