package reconciliation

import (
	"context"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/report"
	"ledger-reconciliation-backend/internal/services/matching"
	"ledger-reconciliation-backend/internal/services/netting"
)

// BankRun holds everything produced by one financial x accounting
// reconciliation. It is private to the invocation that built it.
type BankRun struct {
	Financial  *ledger.Ledger
	Accounting *ledger.Ledger
	Config     matching.Config

	Results []matching.Result
	Review  []matching.Result
	Balance []BalanceRow
	Summary BankSummary
}

// ReviewSheet lists the divergent rows followed by the review suggestions.
func (r *BankRun) ReviewSheet() []matching.Result {
	return matching.ReviewSheet(r.Results, r.Review)
}

type BankSummary struct {
	Total       int             `json:"total"`
	Matched     int             `json:"ok"`
	Divergent   int             `json:"nao_ok"`
	Percent     decimal.Decimal `json:"percentual"`
	ReviewRows  int             `json:"revisao_qtd"`
	Suggestions int             `json:"sugestoes"`

	FinancialJ    decimal.Decimal `json:"financeiro_coluna_j"`
	FinancialK    decimal.Decimal `json:"financeiro_coluna_k"`
	FinancialNet  decimal.Decimal `json:"financeiro_j_menos_k"`
	AccountingJ   decimal.Decimal `json:"contabil_coluna_j"`
	AccountingK   decimal.Decimal `json:"contabil_coluna_k"`
	AccountingNet decimal.Decimal `json:"contabil_j_menos_k"`
	Difference    decimal.Decimal `json:"diferenca_fin_menos_cont"`

	Dropped      int  `json:"linhas_descartadas"`
	SoftFailures int  `json:"celulas_invalidas"`
	Dated        bool `json:"usa_data"`
}

// RunBankLedger reads both workbooks, matches them, runs the review pass and
// computes the closing balance. A missing sheet or column aborts the run with
// a *ledger.SchemaNotFoundError.
func RunBankLedger(ctx context.Context, finWB, accWB *ledger.Workbook, cfg matching.Config) (*BankRun, error) {
	log := logger.FromContext(ctx)

	fin, err := ledger.Read(ctx, finWB, ledger.FinancialLayout)
	if err != nil {
		return nil, err
	}
	acc, err := ledger.Read(ctx, accWB, ledger.AccountingLayout)
	if err != nil {
		return nil, err
	}

	engine := matching.NewEngine(cfg, log)
	run := &BankRun{
		Financial:  fin,
		Accounting: acc,
		Config:     cfg,
	}
	run.Results = engine.Match(fin, acc)
	run.Review = engine.Review(run.Results, fin, acc)
	run.Balance = LedgerBalance(fin, acc)
	run.Summary = summarizeBank(run)
	return run, nil
}

func summarizeBank(run *BankRun) BankSummary {
	counts := matching.Counts(run.Results)
	s := BankSummary{
		Total:       len(run.Results),
		Matched:     counts[matching.StatusMatched],
		Suggestions: len(run.Review),
		Percent:     decimal.Zero,

		FinancialJ:    run.Financial.SumJ,
		FinancialK:    run.Financial.SumK,
		FinancialNet:  run.Balance[1].Net,
		AccountingJ:   run.Accounting.SumJ,
		AccountingK:   run.Accounting.SumK,
		AccountingNet: run.Balance[0].Net,
		Difference:    run.Balance[2].Net,

		Dropped:      run.Financial.Dropped + run.Accounting.Dropped,
		SoftFailures: run.Financial.SoftFailures + run.Accounting.SoftFailures,
		Dated:        matching.UseDates(run.Financial, run.Accounting),
	}
	s.Divergent = s.Total - s.Matched
	s.ReviewRows = s.Divergent + s.Suggestions
	if s.Total > 0 {
		s.Percent = decimal.NewFromInt(int64(s.Matched)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(s.Total))).
			Round(2)
	}
	return s
}

// CustomerRun holds one invoice x receipt reconciliation of a journal,
// optionally confronted with a receivables report.
type CustomerRun struct {
	Config         netting.Config
	InitialBalance decimal.Decimal

	Aggregation *netting.Aggregation
	Pairing     netting.Pairing
	// CrossCheck is nil when no receivables report was given.
	CrossCheck *netting.CrossCheck
	Summary    CustomerSummary
}

type CustomerSummary struct {
	InitialBalance decimal.Decimal `json:"saldo_inicial"`
	TotalInvoices  decimal.Decimal `json:"total_nfs"`
	TotalReceipts  decimal.Decimal `json:"total_recebimentos"`
	FinalBalance   decimal.Decimal `json:"saldo_final"`
	InvoiceCount   int             `json:"qtd_nfs"`
	ReceiptCount   int             `json:"qtd_recebimentos"`
	Matches        int             `json:"qtd_matches"`
	Unmatched      int             `json:"qtd_nao_encontrados"`
	Lines          int             `json:"lancamentos"`
	Unidentified   int             `json:"sem_identificador"`

	CrossCheck *CrossCheckSummary `json:"confronto,omitempty"`
	// Display repeats the monetary totals as BRL text.
	Display CustomerDisplay `json:"formatado"`
}

type CustomerDisplay struct {
	InitialBalance   string `json:"saldo_inicial"`
	TotalInvoices    string `json:"total_nfs"`
	TotalReceipts    string `json:"total_recebimentos"`
	FinalBalance     string `json:"saldo_final"`
	FinancialBalance string `json:"saldo_financeiro,omitempty"`
}

type CrossCheckSummary struct {
	FinancialBalance decimal.Decimal `json:"saldo_financeiro"`
	SumOverdue       decimal.Decimal `json:"soma_col_k"`
	SumCurrent       decimal.Decimal `json:"soma_col_l"`
	References       int             `json:"qtd_titulos"`
	Found            int             `json:"qtd_encontrados"`
	NotFound         int             `json:"qtd_nao_encontrados"`
	TotalUnmatched   int             `json:"total_nao_matcheadas"`
}

// RunCustomer nets the journal into invoice and receipt buckets, pairs them
// and, when receivables is non-nil, confronts the unpaired invoices with it.
func RunCustomer(ctx context.Context, journalWB, receivablesWB *ledger.Workbook, initial decimal.Decimal, cfg netting.Config) (*CustomerRun, error) {
	lines, err := ledger.ReadJournal(ctx, journalWB)
	if err != nil {
		return nil, err
	}

	var receivables []ledger.Receivable
	if receivablesWB != nil {
		if receivables, err = ledger.ReadReceivables(ctx, receivablesWB); err != nil {
			return nil, err
		}
	}

	agg := netting.Aggregate(ctx, lines, cfg)
	run := &CustomerRun{
		Config:         cfg,
		InitialBalance: initial,
		Aggregation:    agg,
		Pairing:        netting.PairBuckets(agg.Invoices, agg.Receipts, cfg.Tolerance, cfg.Strategy),
	}
	if receivablesWB != nil {
		cc := netting.Confirm(run.Pairing.UnmatchedInvoices, receivables)
		run.CrossCheck = &cc
	}
	run.Summary = summarizeCustomer(run)

	log := logger.FromContext(ctx)
	log.Info().
		Int("pairs", len(run.Pairing.Pairs)).
		Str("final_balance", run.Summary.FinalBalance.StringFixed(2)).
		Msg("customer reconciliation finished")
	return run, nil
}

func summarizeCustomer(run *CustomerRun) CustomerSummary {
	agg := run.Aggregation
	s := CustomerSummary{
		InitialBalance: run.InitialBalance,
		TotalInvoices:  agg.Invoices.TotalNet(),
		TotalReceipts:  agg.Receipts.TotalNet(),
		FinalBalance:   RunningBalance(run.InitialBalance, agg.Invoices, agg.Receipts),
		InvoiceCount:   agg.Invoices.Len(),
		ReceiptCount:   agg.Receipts.Len(),
		Matches:        len(run.Pairing.Pairs),
		Unmatched:      len(run.Pairing.UnmatchedInvoices) + len(run.Pairing.UnmatchedReceipts),
		Lines:          len(agg.Lines),
		Unidentified:   agg.Unidentified,
	}
	if cc := run.CrossCheck; cc != nil {
		s.CrossCheck = &CrossCheckSummary{
			FinancialBalance: cc.Balance,
			SumOverdue:       cc.SumOverdue,
			SumCurrent:       cc.SumCurrent,
			References:       cc.References,
			Found:            len(cc.Found),
			NotFound:         len(cc.NotFound),
			TotalUnmatched:   cc.Unmatched,
		}
	}

	s.Display = CustomerDisplay{
		InitialBalance: report.FormatBRL(s.InitialBalance),
		TotalInvoices:  report.FormatBRL(s.TotalInvoices),
		TotalReceipts:  report.FormatBRL(s.TotalReceipts),
		FinalBalance:   report.FormatBRL(s.FinalBalance),
	}
	if s.CrossCheck != nil {
		s.Display.FinancialBalance = report.FormatBRL(s.CrossCheck.FinancialBalance)
	}
	return s
}
