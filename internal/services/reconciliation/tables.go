package reconciliation

import (
	"fmt"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/report"
	"ledger-reconciliation-backend/internal/services/matching"
	"ledger-reconciliation-backend/internal/services/netting"
)

var resultHeader = []any{
	"STATUS",
	"DATA_RELATORIO_FINANCEIRO", "TIPO_RELATORIO_FINANCEIRO", "TEXTO_RELATORIO_FINANCEIRO", "VALOR_RELATORIO_FINANCEIRO",
	"DATA_RELATORIO_CONTABIL", "TIPO_RELATORIO_CONTABIL", "HISTORICO_RELATORIO_CONTABIL", "VALOR_RELATORIO_CONTABIL",
	"DIF", "OBS",
}

// BankSheets lays a bank run out as CONCILIACAO, REVISAO and SALDO_FINAL.
func BankSheets(run *BankRun) []report.Sheet {
	balance := [][]any{{"RELATORIO", "SOMA_COLUNA_J", "SOMA_COLUNA_K", "J_MENOS_K"}}
	for _, b := range run.Balance {
		balance = append(balance, []any{b.Report, b.SumJ, b.SumK, b.Net})
	}
	return []report.Sheet{
		{Name: "CONCILIACAO", Rows: resultRows(run.Results)},
		{Name: "REVISAO", Rows: resultRows(run.ReviewSheet())},
		{Name: "SALDO_FINAL", Rows: balance},
	}
}

func resultRows(results []matching.Result) [][]any {
	rows := make([][]any, 0, len(results)+1)
	rows = append(rows, resultHeader)
	for _, r := range results {
		row := []any{r.Status.Label()}
		row = append(row, sideCells(r.Financial)...)
		row = append(row, sideCells(r.Accounting)...)
		rows = append(rows, append(row, r.Difference, r.Note))
	}
	return rows
}

func sideCells(rec *ledger.Record) []any {
	if rec == nil {
		return []any{"", "", "", 0}
	}
	return []any{report.FormatDate(rec.Date), string(rec.Type), rec.RawText, rec.Amount}
}

// CustomerSheets lays a customer run out as the summary, the invoice and
// receipt details and, when present, the receivables confrontation.
func CustomerSheets(run *CustomerRun) []report.Sheet {
	s := run.Summary
	agg := run.Aggregation

	period := "todo o razao"
	if w := run.Config.Window; w.Bounded() {
		period = fmt.Sprintf("%s a %s", report.FormatDate(w.Start), report.FormatDate(w.End))
	}
	summary := [][]any{
		{"RESUMO DA CONCILIACAO CONTABIL"},
		nil,
		{"Periodo:", period},
		nil,
		{"DESCRICAO", "VALOR (R$)", "OBSERVACAO"},
		{"Saldo Inicial", s.InitialBalance, "Informado pelo usuario"},
		{"Total NFs (Valor Liquido)", s.TotalInvoices, fmt.Sprintf("%d NFs processadas", s.InvoiceCount)},
		{"Total Recebimentos (Valor Liquido)", s.TotalReceipts, fmt.Sprintf("%d recebimentos processados", s.ReceiptCount)},
		{"Saldo Final", s.FinalBalance, "Saldo Inicial + NFs - Recebimentos"},
		nil,
		{"Matches encontrados", s.Matches},
		{"NFs nao matcheadas", len(run.Pairing.UnmatchedInvoices)},
		{"Recebimentos nao matcheados", len(run.Pairing.UnmatchedReceipts)},
	}

	sheets := []report.Sheet{
		{Name: "1-Resumo", Rows: summary},
		{Name: "2-NFs Detalhadas", Rows: bucketRows("NF Numero", agg.Invoices, run.Pairing.InvoicePaired, "Matcheada", "Nao Matcheada")},
		{Name: "3-Recebimentos Detalhados", Rows: bucketRows("Recebimento Numero", agg.Receipts, run.Pairing.ReceiptPaired, "Matcheado", "Nao Matcheado")},
	}
	if run.CrossCheck != nil {
		sheets = append(sheets, report.Sheet{Name: "4-Confronto Financeiro", Rows: crossCheckRows(run.CrossCheck)})
	}
	return sheets
}

func bucketRows(title string, set *netting.BucketSet, paired func(string) bool, yes, no string) [][]any {
	rows := [][]any{{title, "Total Debito", "Total Credito", "Valor Liquido", "Qtd Lancamentos", "Status"}}
	for _, b := range set.Sorted() {
		status := no
		if paired(b.Identifier) {
			status = yes
		}
		rows = append(rows, []any{b.Identifier, b.TotalDebit, b.TotalCredit, b.Net, b.LineCount, status})
	}
	return rows
}

func crossCheckRows(cc *netting.CrossCheck) [][]any {
	rows := [][]any{
		{"CONFRONTO: NFs Nao Matcheadas x Titulos a Receber"},
		nil,
		{"Saldo Financeiro (col K + col L):", cc.Balance},
		{"Soma Coluna K (Titulos Vencidos):", cc.SumOverdue},
		{"Soma Coluna L (Titulos a Vencer):", cc.SumCurrent},
		nil,
		{"NF Numero", "Valor Liquido", "Status", "Referencia no Financeiro"},
	}
	for _, c := range cc.All() {
		rows = append(rows, []any{c.Invoice.Identifier, c.Invoice.Net, c.Status(), c.Reference})
	}
	return rows
}
