package matching

import (
	"math"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/services/extract"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func record(side ledger.Side, rules extract.RuleSet, text, amount string, typ ledger.TransactionType, date string) ledger.Record {
	r := ledger.Record{
		Side:           side,
		RawText:        text,
		NormalizedText: extract.Normalize(text),
		NumericToken:   extract.Digits(text),
		Identifier:     rules.Extract(text),
		Amount:         dec(amount),
		Type:           typ,
	}
	if d, ok := extract.ParseDate(date); ok {
		r.Date = d
	}
	return r
}

func finRec(text, amount string, typ ledger.TransactionType, date string) ledger.Record {
	return record(ledger.SideFinancial, extract.FinancialIdentifier, text, amount, typ, date)
}

func accRec(text, amount string, typ ledger.TransactionType, date string) ledger.Record {
	return record(ledger.SideAccounting, extract.AccountingIdentifier, text, amount, typ, date)
}

func newLedger(side ledger.Side, dated bool, recs ...ledger.Record) *ledger.Ledger {
	for i := range recs {
		recs[i].SourceRow = i + 2
	}
	return &ledger.Ledger{Side: side, HasDates: dated, Records: recs}
}

func newEngine() *Engine {
	return NewEngine(DefaultConfig(), zerolog.Nop())
}

func TestMatch_SupplierPayment(t *testing.T) {
	fin := newLedger(ledger.SideFinancial, false, finRec("FT-12345", "1500.00", ledger.Outflow, ""))
	acc := newLedger(ledger.SideAccounting, false, accRec("PAGTO FT12345 FORNECEDOR", "1500.00", ledger.Credit, ""))

	results := newEngine().Match(fin, acc)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Status != StatusMatched || r.Note != NoteMatched {
		t.Errorf("status = %s %q, want MATCHED", r.Status, r.Note)
	}
	if !r.Difference.IsZero() {
		t.Errorf("difference = %s, want 0", r.Difference)
	}
	if r.Financial != &fin.Records[0] || r.Accounting != &acc.Records[0] {
		t.Error("result does not reference the input records")
	}
}

func TestMatch_NoCandidate(t *testing.T) {
	fin := newLedger(ledger.SideFinancial, false, finRec("FT-12345", "1500.00", ledger.Outflow, ""))
	acc := newLedger(ledger.SideAccounting, false,
		accRec("PAGTO FT12345 FORNECEDOR", "1500.00", ledger.Debit, ""),
		accRec("TARIFA BANCARIA", "1500.00", ledger.Credit, ""),
	)

	results := newEngine().Match(fin, acc)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if r := results[0]; r.Status != StatusDivergent || r.Note != NoteUnmatched || !r.Difference.Equal(dec("1500")) {
		t.Errorf("financial row = %s %q %s", r.Status, r.Note, r.Difference)
	}
	for _, r := range results[1:] {
		if r.Financial != nil || r.Note != NoteNoFinancial {
			t.Errorf("leftover row = %+v", r)
		}
	}
}

func TestMatch_Tolerance(t *testing.T) {
	tests := []struct {
		name    string
		acc     string
		matched bool
	}{
		{"exact", "100.00", true},
		{"one cent", "100.01", true},
		{"one cent below", "99.99", true},
		{"two cents", "100.02", false},
		{"far", "101.00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fin := newLedger(ledger.SideFinancial, false, finRec("DP-555555", "100.00", ledger.Inflow, ""))
			acc := newLedger(ledger.SideAccounting, false, accRec("DEPOSITO 555555", tt.acc, ledger.Debit, ""))

			r := newEngine().Match(fin, acc)[0]
			if got := r.Status == StatusMatched; got != tt.matched {
				t.Fatalf("matched = %v, want %v", got, tt.matched)
			}
			if r.Status == StatusMatched && r.Difference.GreaterThan(dec("0.01")) {
				t.Errorf("difference %s exceeds tolerance", r.Difference)
			}
		})
	}
}

func TestMatch_AccountingRecordUsedOnce(t *testing.T) {
	fin := newLedger(ledger.SideFinancial, false,
		finRec("FT-12345", "10.00", ledger.Outflow, ""),
		finRec("FT-12345", "10.00", ledger.Outflow, ""),
	)
	acc := newLedger(ledger.SideAccounting, false, accRec("FT12345", "10.00", ledger.Credit, ""))

	results := newEngine().Match(fin, acc)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Status != StatusMatched || results[1].Status != StatusDivergent {
		t.Errorf("statuses = %s, %s", results[0].Status, results[1].Status)
	}
}

func TestMatch_HighestScoreWins(t *testing.T) {
	fin := newLedger(ledger.SideFinancial, false, finRec("12345", "100.00", ledger.Outflow, ""))
	acc := newLedger(ledger.SideAccounting, false,
		accRec("PAGTO REF 12345 DIVERSOS", "100.00", ledger.Credit, ""),
		accRec("12345", "100.00", ledger.Credit, ""),
	)

	r := newEngine().Match(fin, acc)[0]
	if r.Accounting != &acc.Records[1] {
		t.Fatalf("picked row %d, want the exact key", r.Accounting.SourceRow)
	}
	if math.Abs(r.Score-1.5) > 1e-9 {
		t.Errorf("score = %v, want 1.5", r.Score)
	}
}

func TestMatch_FirstCandidateWinsTies(t *testing.T) {
	fin := newLedger(ledger.SideFinancial, false, finRec("FT-12345", "100.00", ledger.Outflow, ""))
	acc := newLedger(ledger.SideAccounting, false,
		accRec("PAGTO FT12345", "100.00", ledger.Credit, ""),
		accRec("PAGTO FT12345", "100.00", ledger.Credit, ""),
	)

	results := newEngine().Match(fin, acc)
	if results[0].Accounting != &acc.Records[0] {
		t.Fatal("expected the first candidate on a tie")
	}
	if results[1].Accounting != &acc.Records[1] || results[1].Status != StatusDivergent {
		t.Errorf("leftover = %+v", results[1])
	}
}

func TestMatch_ShortTextIsNotAttempted(t *testing.T) {
	fin := newLedger(ledger.SideFinancial, false, finRec("AB", "50.00", ledger.Outflow, ""))
	acc := newLedger(ledger.SideAccounting, false, accRec("AB", "50.00", ledger.Credit, ""))

	results := newEngine().Match(fin, acc)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Note != NoteInsufficientText || results[0].Status != StatusDivergent {
		t.Errorf("short record = %+v", results[0])
	}
	if results[1].Note != NoteNoFinancial {
		t.Errorf("accounting record = %+v", results[1])
	}
}

func TestMatch_DateWindow(t *testing.T) {
	tests := []struct {
		name    string
		accDate string
		dated   bool
		matched bool
	}{
		{"same day", "15/03/2024", true, true},
		{"next day", "16/03/2024", true, true},
		{"two days", "17/03/2024", true, false},
		{"two days but undated ledger", "17/03/2024", false, true},
		{"missing accounting date", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fin := newLedger(ledger.SideFinancial, tt.dated, finRec("FT-12345", "10.00", ledger.Outflow, "15/03/2024"))
			acc := newLedger(ledger.SideAccounting, tt.dated, accRec("FT12345", "10.00", ledger.Credit, tt.accDate))

			r := newEngine().Match(fin, acc)[0]
			if got := r.Status == StatusMatched; got != tt.matched {
				t.Errorf("matched = %v, want %v", got, tt.matched)
			}
		})
	}
}

func mixedLedgers() (*ledger.Ledger, *ledger.Ledger) {
	fin := newLedger(ledger.SideFinancial, true,
		finRec("FT-12345", "1500.00", ledger.Outflow, "15/03/2024"),
		finRec("DP-000777", "320.10", ledger.Inflow, "15/03/2024"),
		finRec("X", "9.00", ledger.Outflow, "15/03/2024"),
		finRec("BOL-998877", "75.00", ledger.Outflow, "18/03/2024"),
		finRec("FT-12345", "1500.00", ledger.Outflow, "15/03/2024"),
		finRec("TARIFA PACOTE", "42.00", ledger.Outflow, "20/03/2024"),
	)
	acc := newLedger(ledger.SideAccounting, true,
		accRec("PAGTO FT12345 FORNECEDOR", "1500.00", ledger.Credit, "15/03/2024"),
		accRec("DEPOSITO 000777", "320.11", ledger.Debit, "16/03/2024"),
		accRec("BOLETO 998877", "75.00", ledger.Credit, "25/03/2024"),
		accRec("TARIFA PACOTE SERVICOS", "42.00", ledger.Credit, "20/03/2024"),
		accRec("JUROS", "3.00", ledger.Debit, "21/03/2024"),
	)
	return fin, acc
}

func TestMatch_EveryRecordAppearsOnce(t *testing.T) {
	fin, acc := mixedLedgers()
	results := newEngine().Match(fin, acc)

	seen := map[*ledger.Record]int{}
	for _, r := range results {
		if r.Financial != nil {
			seen[r.Financial]++
		}
		if r.Accounting != nil {
			seen[r.Accounting]++
		}
		if r.Status == StatusReview {
			t.Errorf("unexpected review row from Match: %+v", r)
		}
	}
	for i := range fin.Records {
		if n := seen[&fin.Records[i]]; n != 1 {
			t.Errorf("financial row %d appears %d times", fin.Records[i].SourceRow, n)
		}
	}
	for i := range acc.Records {
		if n := seen[&acc.Records[i]]; n != 1 {
			t.Errorf("accounting row %d appears %d times", acc.Records[i].SourceRow, n)
		}
	}

	counts := Counts(results)
	if counts[StatusMatched] != 3 {
		t.Errorf("matched = %d, want 3", counts[StatusMatched])
	}
}

func TestMatch_Deterministic(t *testing.T) {
	fin, acc := mixedLedgers()
	e := newEngine()

	first := e.Match(fin, acc)
	second := e.Match(fin, acc)
	if !reflect.DeepEqual(first, second) {
		t.Error("two runs over the same input produced different results")
	}
}

func TestReview(t *testing.T) {
	fin := newLedger(ledger.SideFinancial, true,
		finRec("FT-111111", "100.00", ledger.Outflow, "15/03/2024"),
		finRec("FT-222222", "200.00", ledger.Outflow, "15/03/2024"),
		finRec("ZZZ999999", "200.00", ledger.Outflow, "15/03/2024"),
	)
	acc := newLedger(ledger.SideAccounting, true,
		accRec("OUTRO HISTORICO", "100.02", ledger.Credit, "16/03/2024"),
		accRec("FT 222222", "200.00", ledger.Credit, "15/03/2024"),
	)

	e := newEngine()
	results := e.Match(fin, acc)
	if got := Counts(results)[StatusMatched]; got != 1 {
		t.Fatalf("matched = %d, want 1", got)
	}

	review := e.Review(results, fin, acc)
	if len(review) != 2 {
		t.Fatalf("got %d review rows, want 2: %+v", len(review), review)
	}
	if review[0].Financial != &fin.Records[0] || review[0].Accounting != &acc.Records[0] {
		t.Errorf("first suggestion = %+v", review[0])
	}
	if !review[0].Difference.Equal(dec("0.02")) || review[0].Note != NoteReview {
		t.Errorf("first suggestion diff/note = %s %q", review[0].Difference, review[0].Note)
	}
	// the accounting record already used by the matcher is suggested again
	if review[1].Financial != &fin.Records[2] || review[1].Accounting != &acc.Records[1] {
		t.Errorf("second suggestion = %+v", review[1])
	}

	sheet := ReviewSheet(results, review)
	if len(sheet) != 5 {
		t.Errorf("review sheet has %d rows, want 5", len(sheet))
	}
	if sheet[len(sheet)-1].Status != StatusReview {
		t.Error("review rows must come last")
	}
}

func TestReview_UndatedLedgers(t *testing.T) {
	fin := newLedger(ledger.SideFinancial, false, finRec("FT-111111", "100.00", ledger.Outflow, "15/03/2024"))
	acc := newLedger(ledger.SideAccounting, true, accRec("OUTRO", "100.00", ledger.Credit, "15/03/2024"))

	e := newEngine()
	if review := e.Review(e.Match(fin, acc), fin, acc); review != nil {
		t.Errorf("expected no review rows, got %+v", review)
	}
}

func TestEffectiveReviewTolerance(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"default", DefaultConfig(), "0.02"},
		{"wider tolerance", Config{Tolerance: dec("0.05")}, "0.05"},
		{"explicit", Config{Tolerance: dec("0.01"), ReviewTolerance: dec("0.10")}, "0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.EffectiveReviewTolerance(); !got.Equal(dec(tt.want)) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
