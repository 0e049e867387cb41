package reconciliation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/report"
	"ledger-reconciliation-backend/internal/repository"
	"ledger-reconciliation-backend/internal/services/matching"
	"ledger-reconciliation-backend/internal/services/netting"
)

var (
	ErrNotReviewable  = errors.New("result is not a review suggestion")
	ErrAlreadyDecided = errors.New("review suggestion already decided")
	ErrInvalidCursor  = errors.New("invalid cursor")
	ErrStorage        = errors.New("storage failure")
)

type BatchStore interface {
	Create(batch *models.ReconciliationBatch) error
	GetByID(id uuid.UUID) (*models.ReconciliationBatch, error)
	Complete(batch *models.ReconciliationBatch) error
	Fail(id uuid.UUID, message string) error
}

type ResultStore interface {
	SaveRun(results []models.MatchResult, buckets []models.DocumentBucket) error
	List(batchID uuid.UUID, status string, after int, limit int) ([]models.MatchResult, error)
	GetByID(id uuid.UUID) (*models.MatchResult, error)
	UpdateReviewState(result *models.MatchResult, audit *models.MatchAuditLog) error
	ListBuckets(batchID uuid.UUID, kind string) ([]models.DocumentBucket, error)
	StatusStats(batchID uuid.UUID) ([]repository.StatRow, error)
}

// Settings are the defaults applied to every run started by the service.
type Settings struct {
	Matching  matching.Config
	Netting   netting.Config
	OutputDir string
}

// Upload is an uploaded workbook already read into memory.
type Upload struct {
	Name string
	Data []byte
}

type BankRequest struct {
	Financial  Upload
	Accounting Upload
	Config     matching.Config
}

type CustomerRequest struct {
	Journal Upload
	// Receivables is optional.
	Receivables    *Upload
	InitialBalance decimal.Decimal
	Config         netting.Config
}

type Progress struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	stageQueued    = "queued"
	stageMatching  = "matching"
	stageReporting = "reporting"
	stageSaving    = "saving"
	stageDone      = "done"
)

type Service struct {
	batches  BatchStore
	results  ResultStore
	settings Settings
	log      zerolog.Logger

	progressCache sync.Map // batchID -> Progress
	wg            sync.WaitGroup
}

func NewService(batches BatchStore, results ResultStore, settings Settings, log zerolog.Logger) *Service {
	return &Service{
		batches:  batches,
		results:  results,
		settings: settings,
		log:      log,
	}
}

func (s *Service) Settings() Settings {
	return s.settings
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) newBatch(kind, filename, secondary string, params any) (*models.ReconciliationBatch, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	now := time.Now()
	batch := &models.ReconciliationBatch{
		ID:                uuid.New(),
		Kind:              kind,
		Filename:          filename,
		SecondaryFilename: secondary,
		Status:            models.BatchStatusProcessing,
		Parameters:        paramsJSON,
		StartedAt:         now,
		CreatedAt:         now,
	}
	if err := s.batches.Create(batch); err != nil {
		return nil, fmt.Errorf("%w: create batch: %w", ErrStorage, err)
	}
	s.setProgress(batch.ID, stageQueued, models.BatchStatusProcessing, "")
	return batch, nil
}

// StartBankLedger validates both workbooks, registers a batch and reconciles
// it in the background. A missing sheet or column is reported here, before
// any batch exists.
func (s *Service) StartBankLedger(ctx context.Context, req BankRequest) (*models.ReconciliationBatch, error) {
	finWB, accWB, err := openBank(req)
	if err != nil {
		return nil, err
	}
	if err := ledger.CheckSchema(finWB, ledger.FinancialLayout); err != nil {
		return nil, err
	}
	if err := ledger.CheckSchema(accWB, ledger.AccountingLayout); err != nil {
		return nil, err
	}

	batch, err := s.newBatch(models.BatchKindBankLedger, req.Financial.Name, req.Accounting.Name, map[string]any{
		"tolerancia":         req.Config.Tolerance,
		"min_len":            req.Config.MinLength,
		"tolerancia_revisao": req.Config.EffectiveReviewTolerance(),
	})
	if err != nil {
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.runBank(runCtx, batch, finWB, accWB, req.Config)
	}()
	return batch, nil
}

// StartCustomer validates the journal (and the receivables report when
// given), registers a batch and reconciles it in the background.
func (s *Service) StartCustomer(ctx context.Context, req CustomerRequest) (*models.ReconciliationBatch, error) {
	journalWB, receivablesWB, err := openCustomer(req)
	if err != nil {
		return nil, err
	}
	if err := ledger.CheckJournal(journalWB); err != nil {
		return nil, err
	}
	secondary := ""
	if receivablesWB != nil {
		if err := ledger.CheckReceivables(receivablesWB); err != nil {
			return nil, err
		}
		secondary = req.Receivables.Name
	}

	batch, err := s.newBatch(models.BatchKindCustomer, req.Journal.Name, secondary, map[string]any{
		"saldo_inicial": req.InitialBalance,
		"data_inicio":   req.Config.Window.Start,
		"data_fim":      req.Config.Window.End,
		"estrategia":    req.Config.Strategy,
		"lote_nf":       req.Config.InvoiceLot,
		"lote_receb":    req.Config.ReceiptLot,
	})
	if err != nil {
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.runCustomer(runCtx, batch, journalWB, receivablesWB, req)
	}()
	return batch, nil
}

func openBank(req BankRequest) (fin, acc *ledger.Workbook, err error) {
	if fin, err = ledger.OpenWorkbook(bytes.NewReader(req.Financial.Data), req.Financial.Name); err != nil {
		return nil, nil, err
	}
	if acc, err = ledger.OpenWorkbook(bytes.NewReader(req.Accounting.Data), req.Accounting.Name); err != nil {
		return nil, nil, err
	}
	return fin, acc, nil
}

func openCustomer(req CustomerRequest) (journal, receivables *ledger.Workbook, err error) {
	if journal, err = ledger.OpenWorkbook(bytes.NewReader(req.Journal.Data), req.Journal.Name); err != nil {
		return nil, nil, err
	}
	if req.Receivables != nil {
		if receivables, err = ledger.OpenWorkbook(bytes.NewReader(req.Receivables.Data), req.Receivables.Name); err != nil {
			return nil, nil, err
		}
	}
	return journal, receivables, nil
}

func (s *Service) batchLogger(ctx context.Context, batch *models.ReconciliationBatch) (context.Context, zerolog.Logger) {
	log := s.log.With().Str("batch_id", batch.ID.String()).Str("kind", batch.Kind).Logger()
	return logger.WithContext(ctx, log), log
}

// runBank runs the financial x accounting pipeline for batch, writes the
// report and persists the rows. Any failure marks the batch failed and
// nothing else is kept.
func (s *Service) runBank(ctx context.Context, batch *models.ReconciliationBatch, finWB, accWB *ledger.Workbook, cfg matching.Config) error {
	ctx, log := s.batchLogger(ctx, batch)

	s.setProgress(batch.ID, stageMatching, models.BatchStatusProcessing, "")
	run, err := RunBankLedger(ctx, finWB, accWB, cfg)
	if err != nil {
		return s.fail(log, batch.ID, err)
	}

	s.setProgress(batch.ID, stageReporting, models.BatchStatusProcessing, "")
	path := s.reportPath(batch.ID, "CONCILIACAO")
	if err := report.Save(path, BankSheets(run)); err != nil {
		return s.fail(log, batch.ID, fmt.Errorf("write report: %w", err))
	}

	s.setProgress(batch.ID, stageSaving, models.BatchStatusProcessing, "")
	if err := s.results.SaveRun(resultModels(ctx, batch.ID, run), nil); err != nil {
		os.Remove(path)
		return s.fail(log, batch.ID, fmt.Errorf("save results: %w", err))
	}

	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return s.fail(log, batch.ID, fmt.Errorf("encode summary: %w", err))
	}
	batch.TotalRecords = run.Summary.Total
	batch.MatchedCount = run.Summary.Matched
	batch.DivergentCount = run.Summary.Divergent
	batch.ReviewCount = run.Summary.Suggestions
	batch.Summary = summary
	batch.ReportPath = path
	if err := s.batches.Complete(batch); err != nil {
		return s.fail(log, batch.ID, fmt.Errorf("complete batch: %w", err))
	}
	batch.Status = models.BatchStatusCompleted

	s.setProgress(batch.ID, stageDone, models.BatchStatusCompleted, "")
	log.Info().
		Int("total", run.Summary.Total).
		Int("matched", run.Summary.Matched).
		Int("suggestions", run.Summary.Suggestions).
		Str("percent", run.Summary.Percent.StringFixed(2)).
		Msg("bank ledger reconciliation completed")
	return nil
}

// runCustomer runs the invoice x receipt pipeline for batch.
func (s *Service) runCustomer(ctx context.Context, batch *models.ReconciliationBatch, journalWB, receivablesWB *ledger.Workbook, req CustomerRequest) error {
	ctx, log := s.batchLogger(ctx, batch)

	s.setProgress(batch.ID, stageMatching, models.BatchStatusProcessing, "")
	run, err := RunCustomer(ctx, journalWB, receivablesWB, req.InitialBalance, req.Config)
	if err != nil {
		return s.fail(log, batch.ID, err)
	}

	s.setProgress(batch.ID, stageReporting, models.BatchStatusProcessing, "")
	path := s.reportPath(batch.ID, "CONCILIACAO_CLIENTE")
	if err := report.Save(path, CustomerSheets(run)); err != nil {
		return s.fail(log, batch.ID, fmt.Errorf("write report: %w", err))
	}

	s.setProgress(batch.ID, stageSaving, models.BatchStatusProcessing, "")
	if err := s.results.SaveRun(nil, bucketModels(batch.ID, run)); err != nil {
		os.Remove(path)
		return s.fail(log, batch.ID, fmt.Errorf("save buckets: %w", err))
	}

	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return s.fail(log, batch.ID, fmt.Errorf("encode summary: %w", err))
	}
	batch.TotalRecords = run.Summary.InvoiceCount + run.Summary.ReceiptCount
	batch.MatchedCount = run.Summary.Matches
	batch.DivergentCount = run.Summary.Unmatched
	batch.Summary = summary
	batch.ReportPath = path
	if err := s.batches.Complete(batch); err != nil {
		return s.fail(log, batch.ID, fmt.Errorf("complete batch: %w", err))
	}
	batch.Status = models.BatchStatusCompleted

	s.setProgress(batch.ID, stageDone, models.BatchStatusCompleted, "")
	return nil
}

func (s *Service) fail(log zerolog.Logger, batchID uuid.UUID, cause error) error {
	var schemaErr *ledger.SchemaNotFoundError
	if errors.As(cause, &schemaErr) {
		log.Error().
			Str("ledger", schemaErr.Ledger).
			Strs("expected", schemaErr.Expected).
			Msg(schemaErr.Error())
	} else {
		log.Error().Err(cause).Msg("reconciliation failed")
	}

	s.setProgress(batchID, stageDone, models.BatchStatusFailed, cause.Error())
	if err := s.batches.Fail(batchID, cause.Error()); err != nil {
		log.Error().Err(err).Msg("could not mark batch failed")
	}
	return cause
}

func (s *Service) reportPath(batchID uuid.UUID, suffix string) string {
	return filepath.Join(s.settings.OutputDir, batchID.String()+"_"+suffix+".xlsx")
}

func (s *Service) setProgress(batchID uuid.UUID, stage, status, message string) {
	s.progressCache.Store(batchID, Progress{Stage: stage, Status: status, Error: message})
}

// Progress returns the in-memory state of a batch started by this process.
func (s *Service) Progress(batchID uuid.UUID) (Progress, bool) {
	val, ok := s.progressCache.Load(batchID)
	if !ok {
		return Progress{}, false
	}
	return val.(Progress), true
}

func (s *Service) GetBatch(batchID uuid.UUID) (*models.ReconciliationBatch, error) {
	return s.batches.GetByID(batchID)
}

// ListResults pages through the rows of a batch in engine order. The cursor
// is the position of the last row of the previous page. An empty status or
// "all" lists every row.
func (s *Service) ListResults(batchID uuid.UUID, status, cursor string, limit int) ([]models.MatchResult, string, bool, error) {
	after := -1
	if cursor != "" {
		pos, err := strconv.Atoi(cursor)
		if err != nil || pos < 0 {
			return nil, "", false, ErrInvalidCursor
		}
		after = pos
	}

	status = strings.ToUpper(strings.TrimSpace(status))
	if status == "ALL" {
		status = ""
	}

	items, err := s.results.List(batchID, status, after, limit)
	if err != nil {
		return nil, "", false, err
	}

	hasMore := false
	var nextCursor string
	if len(items) > limit {
		hasMore = true
		items = items[:limit]
		nextCursor = strconv.Itoa(items[limit-1].Position)
	}
	return items, nextCursor, hasMore, nil
}

func (s *Service) ListBuckets(batchID uuid.UUID, kind string) ([]models.DocumentBucket, error) {
	return s.results.ListBuckets(batchID, kind)
}

type BatchStats struct {
	Total           int64           `json:"total"`
	TotalDifference decimal.Decimal `json:"total_difference"`

	MatchedCount int64           `json:"matched_count"`
	MatchedSum   decimal.Decimal `json:"matched_sum"`

	DivergentCount int64           `json:"divergent_count"`
	DivergentSum   decimal.Decimal `json:"divergent_sum"`

	ReviewCount int64           `json:"review_count"`
	ReviewSum   decimal.Decimal `json:"review_sum"`
}

// GetBatchStats counts the persisted rows of a batch per status and sums
// their differences.
func (s *Service) GetBatchStats(batchID uuid.UUID) (BatchStats, error) {
	var stats BatchStats
	rows, err := s.results.StatusStats(batchID)
	if err != nil {
		return stats, err
	}

	for _, r := range rows {
		stats.Total += r.Count
		stats.TotalDifference = stats.TotalDifference.Add(r.Sum)

		switch matching.Status(r.Status) {
		case matching.StatusMatched:
			stats.MatchedCount = r.Count
			stats.MatchedSum = r.Sum
		case matching.StatusDivergent:
			stats.DivergentCount = r.Count
			stats.DivergentSum = r.Sum
		case matching.StatusReview:
			stats.ReviewCount = r.Count
			stats.ReviewSum = r.Sum
		}
	}
	return stats, nil
}

// ConfirmResult accepts a review suggestion.
func (s *Service) ConfirmResult(resultID uuid.UUID, performedBy, reason string) (*models.MatchResult, error) {
	return s.decide(resultID, models.ReviewStateConfirmed, "confirm", performedBy, reason)
}

// RejectResult discards a review suggestion.
func (s *Service) RejectResult(resultID uuid.UUID, performedBy, reason string) (*models.MatchResult, error) {
	return s.decide(resultID, models.ReviewStateRejected, "reject", performedBy, reason)
}

func (s *Service) decide(resultID uuid.UUID, state, action, performedBy, reason string) (*models.MatchResult, error) {
	result, err := s.results.GetByID(resultID)
	if err != nil {
		return nil, err
	}
	if result.Status != string(matching.StatusReview) {
		return nil, ErrNotReviewable
	}
	if result.ReviewState != models.ReviewStatePending {
		return nil, ErrAlreadyDecided
	}

	previous := result.ReviewState
	result.ReviewState = state
	audit := &models.MatchAuditLog{
		ID:            uuid.New(),
		ResultID:      result.ID,
		BatchID:       result.BatchID,
		Action:        action,
		PreviousState: previous,
		NewState:      state,
		PerformedBy:   performedBy,
		Reason:        reason,
		CreatedAt:     time.Now(),
	}
	if err := s.results.UpdateReviewState(result, audit); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("result_id", result.ID.String()).
		Str("action", action).
		Str("by", performedBy).
		Msg("review decision recorded")
	return result, nil
}

// resultModels flattens the matcher rows followed by the review suggestions.
func resultModels(ctx context.Context, batchID uuid.UUID, run *BankRun) []models.MatchResult {
	out := make([]models.MatchResult, 0, len(run.Results)+len(run.Review))
	now := time.Now()
	for _, r := range run.Results {
		out = append(out, resultModel(ctx, batchID, len(out), r, now))
	}
	for _, r := range run.Review {
		out = append(out, resultModel(ctx, batchID, len(out), r, now))
	}
	return out
}

func resultModel(ctx context.Context, batchID uuid.UUID, position int, r matching.Result, now time.Time) models.MatchResult {
	m := models.MatchResult{
		ID:         uuid.New(),
		BatchID:    batchID,
		Position:   position,
		Status:     string(r.Status),
		Difference: r.Difference,
		Note:       r.Note,
		Score:      r.Score,
		CreatedAt:  now,
	}
	if r.Status == matching.StatusReview {
		m.ReviewState = models.ReviewStatePending
	}

	details := map[string]any{"score": r.Score}
	if rec := r.Financial; rec != nil {
		row := rec.SourceRow
		m.FinancialRow = &row
		m.FinancialDate = datePtr(rec)
		m.FinancialType = string(rec.Type)
		m.FinancialText = rec.RawText
		m.FinancialAmount = rec.Amount
		details["financial_normalized"] = rec.NormalizedText
		details["financial_identifier"] = rec.Identifier
	}
	if rec := r.Accounting; rec != nil {
		row := rec.SourceRow
		m.AccountingRow = &row
		m.AccountingDate = datePtr(rec)
		m.AccountingType = string(rec.Type)
		m.AccountingText = rec.RawText
		m.AccountingAmount = rec.Amount
		details["accounting_normalized"] = rec.NormalizedText
		details["accounting_identifier"] = rec.Identifier
	}
	raw, err := json.Marshal(details)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Int("position", position).Msg("match details not encoded")
		return m
	}
	m.MatchDetails = raw
	return m
}

func datePtr(rec *ledger.Record) *time.Time {
	if !rec.HasDate() {
		return nil
	}
	d := rec.Date
	return &d
}

func bucketModels(batchID uuid.UUID, run *CustomerRun) []models.DocumentBucket {
	pairedWith := make(map[string]string, 2*len(run.Pairing.Pairs))
	for _, p := range run.Pairing.Pairs {
		pairedWith[string(netting.KindInvoice)+p.Invoice.Identifier] = p.Receipt.Identifier
		pairedWith[string(netting.KindReceipt)+p.Receipt.Identifier] = p.Invoice.Identifier
	}

	now := time.Now()
	var out []models.DocumentBucket
	for _, set := range []*netting.BucketSet{run.Aggregation.Invoices, run.Aggregation.Receipts} {
		for _, b := range set.Buckets() {
			other, paired := pairedWith[string(b.Kind)+b.Identifier]
			out = append(out, models.DocumentBucket{
				ID:          uuid.New(),
				BatchID:     batchID,
				Kind:        string(b.Kind),
				Identifier:  b.Identifier,
				TotalDebit:  b.TotalDebit,
				TotalCredit: b.TotalCredit,
				NetValue:    b.Net,
				LineCount:   b.LineCount,
				Paired:      paired,
				PairedWith:  other,
				CreatedAt:   now,
			})
		}
	}
	return out
}
