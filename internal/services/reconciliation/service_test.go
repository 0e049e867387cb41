package reconciliation

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/repository"
	"ledger-reconciliation-backend/internal/services/matching"
	"ledger-reconciliation-backend/internal/services/netting"
)

type fakeBatchStore struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*models.ReconciliationBatch
	failed  map[uuid.UUID]string
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{
		batches: map[uuid.UUID]*models.ReconciliationBatch{},
		failed:  map[uuid.UUID]string{},
	}
}

func (f *fakeBatchStore) Create(b *models.ReconciliationBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *b
	f.batches[b.ID] = &cp
	return nil
}

func (f *fakeBatchStore) GetByID(id uuid.UUID) (*models.ReconciliationBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBatchStore) Complete(b *models.ReconciliationBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *b
	cp.Status = models.BatchStatusCompleted
	f.batches[b.ID] = &cp
	return nil
}

func (f *fakeBatchStore) Fail(id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = message
	if b, ok := f.batches[id]; ok {
		b.Status = models.BatchStatusFailed
		b.Error = message
	}
	return nil
}

type fakeResultStore struct {
	mu      sync.Mutex
	results []models.MatchResult
	buckets []models.DocumentBucket
	audits  []models.MatchAuditLog
	saves   int
}

func (f *fakeResultStore) SaveRun(results []models.MatchResult, buckets []models.DocumentBucket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.results = append(f.results, results...)
	f.buckets = append(f.buckets, buckets...)
	return nil
}

func (f *fakeResultStore) List(batchID uuid.UUID, status string, after int, limit int) ([]models.MatchResult, error) {
	var out []models.MatchResult
	for _, r := range f.results {
		if r.BatchID != batchID || r.Position <= after {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
		if len(out) == limit+1 {
			break
		}
	}
	return out, nil
}

func (f *fakeResultStore) GetByID(id uuid.UUID) (*models.MatchResult, error) {
	for i := range f.results {
		if f.results[i].ID == id {
			cp := f.results[i]
			return &cp, nil
		}
	}
	return nil, errors.New("record not found")
}

func (f *fakeResultStore) UpdateReviewState(result *models.MatchResult, audit *models.MatchAuditLog) error {
	for i := range f.results {
		if f.results[i].ID == result.ID {
			f.results[i].ReviewState = result.ReviewState
		}
	}
	f.audits = append(f.audits, *audit)
	return nil
}

func (f *fakeResultStore) ListBuckets(batchID uuid.UUID, kind string) ([]models.DocumentBucket, error) {
	var out []models.DocumentBucket
	for _, b := range f.buckets {
		if b.BatchID == batchID && (kind == "" || b.Kind == kind) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeResultStore) StatusStats(batchID uuid.UUID) ([]repository.StatRow, error) {
	idx := map[string]int{}
	var rows []repository.StatRow
	for _, r := range f.results {
		if r.BatchID != batchID {
			continue
		}
		i, ok := idx[r.Status]
		if !ok {
			i = len(rows)
			idx[r.Status] = i
			rows = append(rows, repository.StatRow{Status: r.Status, Sum: decimal.Zero})
		}
		rows[i].Count++
		rows[i].Sum = rows[i].Sum.Add(r.Difference)
	}
	return rows, nil
}

func newTestService(t *testing.T) (*Service, *fakeBatchStore, *fakeResultStore) {
	t.Helper()
	batches := newFakeBatchStore()
	results := &fakeResultStore{}
	settings := Settings{
		Matching:  matching.DefaultConfig(),
		Netting:   netting.DefaultConfig(),
		OutputDir: t.TempDir(),
	}
	return NewService(batches, results, settings, zerolog.Nop()), batches, results
}

// xlsx serializes a ledger workbook so it goes through the real upload path.
func xlsx(t *testing.T, wb *ledger.Workbook) Upload {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range wb.Sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		for r, row := range sheet.Rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+1)
			values := make([]any, len(row))
			for c, v := range row {
				values[c] = v
			}
			if err := f.SetSheetRow(sheet.Name, cell, &values); err != nil {
				t.Fatalf("write row: %v", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return Upload{Name: wb.Name, Data: buf.Bytes()}
}

func TestStartBankLedger_PersistsRun(t *testing.T) {
	svc, batches, results := newTestService(t)
	req := BankRequest{
		Financial:  xlsx(t, financialWorkbook()),
		Accounting: xlsx(t, accountingWorkbook()),
		Config:     matching.DefaultConfig(),
	}

	batch, err := svc.StartBankLedger(context.Background(), req)
	if err != nil {
		t.Fatalf("StartBankLedger: %v", err)
	}
	svc.Wait()

	stored, err := batches.GetByID(batch.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != models.BatchStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	if stored.TotalRecords != 2 || stored.MatchedCount != 1 || stored.DivergentCount != 1 {
		t.Errorf("counters = %d/%d/%d", stored.TotalRecords, stored.MatchedCount, stored.DivergentCount)
	}
	if _, err := os.Stat(stored.ReportPath); err != nil {
		t.Errorf("report not written: %v", err)
	}

	if len(results.results) != 2 {
		t.Fatalf("persisted %d results, want 2", len(results.results))
	}
	first := results.results[0]
	if first.Position != 0 || first.Status != string(matching.StatusMatched) || first.FinancialText != "FT-12345" {
		t.Errorf("first result = %+v", first)
	}
	if first.FinancialRow == nil || *first.FinancialRow != 2 {
		t.Errorf("financial row = %v, want 2", first.FinancialRow)
	}
	if results.results[1].AccountingRow != nil {
		t.Error("divergent row must not carry an accounting side")
	}

	p, ok := svc.Progress(batch.ID)
	if !ok || p.Status != models.BatchStatusCompleted {
		t.Errorf("progress = %+v", p)
	}
}

func TestRunBank_FailureMarksBatch(t *testing.T) {
	svc, batches, results := newTestService(t)
	broken := &ledger.Workbook{Name: "cont.xlsx", Sheets: []ledger.Sheet{{
		Name: "3-Lancamentos Contabeis",
		Rows: [][]string{{"HISTORICO", "DEBITO"}},
	}}}

	batch, err := svc.newBatch(models.BatchKindBankLedger, "fin.xlsx", "cont.xlsx", nil)
	if err != nil {
		t.Fatalf("newBatch: %v", err)
	}
	err = svc.runBank(context.Background(), batch, financialWorkbook(), broken, matching.DefaultConfig())

	var schemaErr *ledger.SchemaNotFoundError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaNotFoundError, got %v", err)
	}
	if schemaErr.Missing != "CREDITO" {
		t.Errorf("missing = %q", schemaErr.Missing)
	}
	if batches.failed[batch.ID] != err.Error() {
		t.Errorf("batch failure = %q", batches.failed[batch.ID])
	}
	if results.saves != 0 {
		t.Error("a failed run must not persist results")
	}
	if p, _ := svc.Progress(batch.ID); p.Status != models.BatchStatusFailed {
		t.Errorf("progress = %+v", p)
	}
}

func TestStartBankLedger_RunsInBackground(t *testing.T) {
	svc, batches, _ := newTestService(t)
	req := BankRequest{
		Financial:  xlsx(t, financialWorkbook()),
		Accounting: xlsx(t, accountingWorkbook()),
		Config:     matching.DefaultConfig(),
	}

	batch, err := svc.StartBankLedger(context.Background(), req)
	if err != nil {
		t.Fatalf("StartBankLedger: %v", err)
	}
	id := batch.ID
	svc.Wait()

	stored, err := batches.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Kind != models.BatchKindBankLedger || stored.Status != models.BatchStatusCompleted {
		t.Errorf("batch = %s %s", stored.Kind, stored.Status)
	}
}

func TestStartCustomer_PersistsBuckets(t *testing.T) {
	svc, batches, results := newTestService(t)
	req := CustomerRequest{
		Journal:        xlsx(t, journalWorkbook()),
		InitialBalance: dec("1000"),
		Config:         netting.DefaultConfig(),
	}

	batch, err := svc.StartCustomer(context.Background(), req)
	if err != nil {
		t.Fatalf("StartCustomer: %v", err)
	}
	svc.Wait()

	stored, _ := batches.GetByID(batch.ID)
	if stored.Status != models.BatchStatusCompleted || stored.TotalRecords != 2 || stored.MatchedCount != 0 {
		t.Errorf("batch = %+v", stored)
	}
	if len(results.results) != 0 {
		t.Errorf("customer runs persist no match rows, got %d", len(results.results))
	}

	buckets, _ := svc.ListBuckets(batch.ID, "")
	if len(buckets) != 2 {
		t.Fatalf("got %d buckets, want 2", len(buckets))
	}
	if buckets[0].Kind != string(netting.KindInvoice) || buckets[0].Identifier != "000002902" || !buckets[0].NetValue.Equal(dec("5000")) {
		t.Errorf("invoice bucket = %+v", buckets[0])
	}
	if buckets[1].Kind != string(netting.KindReceipt) || buckets[1].Identifier != "1000670" || buckets[1].Paired {
		t.Errorf("receipt bucket = %+v", buckets[1])
	}

	receipts, _ := svc.ListBuckets(batch.ID, string(netting.KindReceipt))
	if len(receipts) != 1 {
		t.Errorf("receipt filter returned %d buckets", len(receipts))
	}
}

func seedResults(store *fakeResultStore, batchID uuid.UUID, statuses ...matching.Status) {
	for i, st := range statuses {
		r := models.MatchResult{
			ID:         uuid.New(),
			BatchID:    batchID,
			Position:   i,
			Status:     string(st),
			Difference: decimal.NewFromInt(int64(i)),
		}
		if st == matching.StatusReview {
			r.ReviewState = models.ReviewStatePending
		}
		store.results = append(store.results, r)
	}
}

func TestListResults_Pagination(t *testing.T) {
	svc, _, results := newTestService(t)
	batchID := uuid.New()
	seedResults(results, batchID,
		matching.StatusMatched, matching.StatusDivergent, matching.StatusMatched,
		matching.StatusMatched, matching.StatusReview,
	)

	page, cursor, hasMore, err := svc.ListResults(batchID, "", "", 2)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(page) != 2 || !hasMore || cursor != "1" {
		t.Fatalf("page 1: len=%d hasMore=%v cursor=%q", len(page), hasMore, cursor)
	}

	page, cursor, hasMore, _ = svc.ListResults(batchID, "", cursor, 2)
	if len(page) != 2 || page[0].Position != 2 || !hasMore || cursor != "3" {
		t.Fatalf("page 2: len=%d hasMore=%v cursor=%q", len(page), hasMore, cursor)
	}

	page, cursor, hasMore, _ = svc.ListResults(batchID, "", cursor, 2)
	if len(page) != 1 || hasMore || cursor != "" {
		t.Fatalf("page 3: len=%d hasMore=%v cursor=%q", len(page), hasMore, cursor)
	}

	matched, _, _, _ := svc.ListResults(batchID, string(matching.StatusMatched), "", 10)
	if len(matched) != 3 {
		t.Errorf("status filter returned %d rows, want 3", len(matched))
	}

	for _, status := range []string{"all", "ALL", " All "} {
		rows, _, _, err := svc.ListResults(batchID, status, "", 10)
		if err != nil || len(rows) != 5 {
			t.Errorf("status %q returned %d rows (err %v), want 5", status, len(rows), err)
		}
	}
	if rows, _, _, _ := svc.ListResults(batchID, "review", "", 10); len(rows) != 1 {
		t.Errorf("lower-case status returned %d rows, want 1", len(rows))
	}

	if _, _, _, err := svc.ListResults(batchID, "", "abc", 2); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("bad cursor error = %v", err)
	}
}

func TestGetBatchStats(t *testing.T) {
	svc, _, results := newTestService(t)
	batchID := uuid.New()
	seedResults(results, batchID, matching.StatusMatched, matching.StatusDivergent, matching.StatusReview, matching.StatusDivergent)

	stats, err := svc.GetBatchStats(batchID)
	if err != nil {
		t.Fatalf("GetBatchStats: %v", err)
	}
	if stats.Total != 4 || stats.MatchedCount != 1 || stats.DivergentCount != 2 || stats.ReviewCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
	// differences are the positions 0..3
	if !stats.DivergentSum.Equal(dec("4")) || !stats.TotalDifference.Equal(dec("6")) {
		t.Errorf("sums = divergent %s total %s", stats.DivergentSum, stats.TotalDifference)
	}
}

func TestReviewDecisions(t *testing.T) {
	svc, _, results := newTestService(t)
	batchID := uuid.New()
	seedResults(results, batchID, matching.StatusMatched, matching.StatusReview, matching.StatusReview)

	if _, err := svc.ConfirmResult(results.results[0].ID, "ana", ""); !errors.Is(err, ErrNotReviewable) {
		t.Errorf("confirming a matched row: err = %v", err)
	}

	got, err := svc.ConfirmResult(results.results[1].ID, "ana", "same document")
	if err != nil {
		t.Fatalf("ConfirmResult: %v", err)
	}
	if got.ReviewState != models.ReviewStateConfirmed || results.results[1].ReviewState != models.ReviewStateConfirmed {
		t.Errorf("review state = %s", got.ReviewState)
	}
	if _, err := svc.RejectResult(results.results[1].ID, "ana", ""); !errors.Is(err, ErrAlreadyDecided) {
		t.Errorf("second decision: err = %v", err)
	}

	if _, err := svc.RejectResult(results.results[2].ID, "bruno", "different supplier"); err != nil {
		t.Fatalf("RejectResult: %v", err)
	}

	if len(results.audits) != 2 {
		t.Fatalf("got %d audit entries, want 2", len(results.audits))
	}
	a := results.audits[1]
	if a.Action != "reject" || a.PreviousState != models.ReviewStatePending || a.NewState != models.ReviewStateRejected || a.PerformedBy != "bruno" {
		t.Errorf("audit = %+v", a)
	}
}

func TestStartBankLedger_RejectsBadSchema(t *testing.T) {
	svc, batches, _ := newTestService(t)
	req := BankRequest{
		Financial:  xlsx(t, &ledger.Workbook{Name: "fin.xlsx", Sheets: []ledger.Sheet{{Name: "Plan1"}}}),
		Accounting: xlsx(t, accountingWorkbook()),
		Config:     matching.DefaultConfig(),
	}

	batch, err := svc.StartBankLedger(context.Background(), req)
	var schemaErr *ledger.SchemaNotFoundError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaNotFoundError, got %v", err)
	}
	if batch != nil || len(batches.batches) != 0 {
		t.Error("no batch may be created for an unreadable upload")
	}
}

func TestStartCustomer_RejectsBadReceivables(t *testing.T) {
	svc, batches, _ := newTestService(t)
	receivables := xlsx(t, &ledger.Workbook{Name: "titulos.xlsx", Sheets: []ledger.Sheet{{Name: "Resumo"}}})
	req := CustomerRequest{
		Journal:     xlsx(t, journalWorkbook()),
		Receivables: &receivables,
		Config:      netting.DefaultConfig(),
	}

	_, err := svc.StartCustomer(context.Background(), req)
	var schemaErr *ledger.SchemaNotFoundError
	if !errors.As(err, &schemaErr) || schemaErr.Ledger != ledger.ReceivablesLedger {
		t.Fatalf("expected receivables SchemaNotFoundError, got %v", err)
	}
	if len(batches.batches) != 0 {
		t.Error("no batch may be created for an unreadable upload")
	}
}

func TestResultModel_UnencodableDetails(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	rec := &ledger.Record{Side: ledger.SideFinancial, RawText: "PAGTO", Amount: decimal.NewFromInt(10), SourceRow: 4}
	m := resultModel(ctx, uuid.New(), 7, matching.Result{Status: matching.StatusDivergent, Financial: rec, Score: math.NaN()}, time.Now())

	if m.MatchDetails != nil {
		t.Errorf("details = %s, want none", m.MatchDetails)
	}
	if m.FinancialRow == nil || *m.FinancialRow != 4 || m.Position != 7 {
		t.Errorf("row fields = %+v", m)
	}
	if !strings.Contains(buf.String(), "match details not encoded") {
		t.Errorf("encoding failure not logged: %s", buf.String())
	}
}
