package reconciliation

import (
	"github.com/shopspring/decimal"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/services/netting"
)

// BalanceRow is one line of the closing balance table. The difference row
// carries no column sums.
type BalanceRow struct {
	Report string              `json:"report"`
	SumJ   decimal.NullDecimal `json:"sum_j"`
	SumK   decimal.NullDecimal `json:"sum_k"`
	Net    decimal.Decimal     `json:"j_minus_k"`
}

const (
	BalanceAccounting = "Relatorio Contabil"
	BalanceFinancial  = "Relatorio Financeiro"
	BalanceDifference = "DIFERENCA (Financeiro - Contabil)"
)

// LedgerBalance sums the J and K columns of both ledgers and reports the
// difference between their nets.
func LedgerBalance(fin, acc *ledger.Ledger) []BalanceRow {
	accNet := acc.SumJ.Sub(acc.SumK)
	finNet := fin.SumJ.Sub(fin.SumK)
	return []BalanceRow{
		{
			Report: BalanceAccounting,
			SumJ:   decimal.NewNullDecimal(acc.SumJ),
			SumK:   decimal.NewNullDecimal(acc.SumK),
			Net:    accNet,
		},
		{
			Report: BalanceFinancial,
			SumJ:   decimal.NewNullDecimal(fin.SumJ),
			SumK:   decimal.NewNullDecimal(fin.SumK),
			Net:    finNet,
		},
		{
			Report: BalanceDifference,
			Net:    finNet.Sub(accNet),
		},
	}
}

// RunningBalance is initial + sum of invoice nets - sum of receipt nets.
func RunningBalance(initial decimal.Decimal, invoices, receipts *netting.BucketSet) decimal.Decimal {
	return initial.Add(invoices.TotalNet()).Sub(receipts.TotalNet())
}
