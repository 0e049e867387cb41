package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/services/extract"
	"ledger-reconciliation-backend/internal/services/netting"
	service "ledger-reconciliation-backend/internal/services/reconciliation"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxUploadSize   = 50 << 20
)

type ReconciliationService interface {
	Settings() service.Settings
	StartBankLedger(ctx context.Context, req service.BankRequest) (*models.ReconciliationBatch, error)
	StartCustomer(ctx context.Context, req service.CustomerRequest) (*models.ReconciliationBatch, error)
	GetBatch(batchID uuid.UUID) (*models.ReconciliationBatch, error)
	Progress(batchID uuid.UUID) (service.Progress, bool)
	ListResults(batchID uuid.UUID, status, cursor string, limit int) ([]models.MatchResult, string, bool, error)
	GetBatchStats(batchID uuid.UUID) (service.BatchStats, error)
	ListBuckets(batchID uuid.UUID, kind string) ([]models.DocumentBucket, error)
	ConfirmResult(resultID uuid.UUID, performedBy, reason string) (*models.MatchResult, error)
	RejectResult(resultID uuid.UUID, performedBy, reason string) (*models.MatchResult, error)
}

type ReconciliationHandler struct {
	service ReconciliationService
}

func NewReconciliationHandler(s ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{service: s}
}

// readUpload loads a multipart file fully so the background run does not
// depend on the request body.
func readUpload(c *gin.Context, field string) (*service.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	return openUpload(fh)
}

func openUpload(fh *multipart.FileHeader) (*service.Upload, error) {
	if fh.Size > maxUploadSize {
		return nil, fmt.Errorf("%s exceeds %d MB", fh.Filename, maxUploadSize>>20)
	}
	if ext := strings.ToLower(filepath.Ext(fh.Filename)); ext != ".xlsx" && ext != ".xlsm" {
		return nil, fmt.Errorf("%s: only .xlsx workbooks are accepted", fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &service.Upload{Name: fh.Filename, Data: data}, nil
}

// respondStartError maps a schema problem to 422 and anything else to 400.
func respondStartError(c *gin.Context, err error) {
	var schemaErr *ledger.SchemaNotFoundError
	if errors.As(err, &schemaErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    schemaErr.Error(),
			"ledger":   schemaErr.Ledger,
			"kind":     schemaErr.Kind,
			"expected": schemaErr.Expected,
			"found":    schemaErr.Found,
		})
		return
	}
	if errors.Is(err, service.ErrStorage) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register batch"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// UploadBankLedger starts a financial x accounting reconciliation.
func (h *ReconciliationHandler) UploadBankLedger(c *gin.Context) {
	fin, err := readUpload(c, "arquivo_fin")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "arquivo_fin required: " + err.Error()})
		return
	}
	acc, err := readUpload(c, "arquivo_contabil")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "arquivo_contabil required: " + err.Error()})
		return
	}

	cfg := h.service.Settings().Matching
	if raw := strings.TrimSpace(c.PostForm("tolerancia")); raw != "" {
		tol, err := extract.ParseAmountE(raw)
		if err != nil || tol.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tolerancia"})
			return
		}
		cfg.Tolerance = tol
	}
	if raw := strings.TrimSpace(c.PostForm("min_len")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_len"})
			return
		}
		cfg.MinLength = n
	}

	batch, err := h.service.StartBankLedger(c.Request.Context(), service.BankRequest{
		Financial:  *fin,
		Accounting: *acc,
		Config:     cfg,
	})
	if err != nil {
		respondStartError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"batch_id": batch.ID.String(),
		"status":   models.BatchStatusProcessing,
	})
}

func parseFormDate(c *gin.Context, field string) (time.Time, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return time.Time{}, nil
	}
	d, ok := extract.ParseDate(raw)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid %s, expected dd/mm/yyyy", field)
	}
	return d, nil
}

// UploadCustomer starts an invoice x receipt reconciliation of a journal.
func (h *ReconciliationHandler) UploadCustomer(c *gin.Context) {
	journal, err := readUpload(c, "arquivo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "arquivo required: " + err.Error()})
		return
	}

	var receivables *service.Upload
	if _, err := c.FormFile("arquivo_financeiro"); err == nil {
		if receivables, err = readUpload(c, "arquivo_financeiro"); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	initial := decimal.Zero
	if raw := strings.TrimSpace(c.PostForm("saldo_inicial")); raw != "" {
		if initial, err = extract.ParseAmountE(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid saldo_inicial"})
			return
		}
	}

	cfg := h.service.Settings().Netting
	if cfg.Window.Start, err = parseFormDate(c, "data_inicio"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if cfg.Window.End, err = parseFormDate(c, "data_fim"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !cfg.Window.Start.IsZero() && !cfg.Window.End.IsZero() && cfg.Window.End.Before(cfg.Window.Start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data_fim before data_inicio"})
		return
	}
	if raw := c.PostForm("estrategia"); raw != "" {
		if cfg.Strategy, err = netting.ParseStrategy(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	batch, err := h.service.StartCustomer(c.Request.Context(), service.CustomerRequest{
		Journal:        *journal,
		Receivables:    receivables,
		InitialBalance: initial,
		Config:         cfg,
	})
	if err != nil {
		respondStartError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"batch_id": batch.ID.String(),
		"status":   models.BatchStatusProcessing,
	})
}

func parseID(c *gin.Context, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + label + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *ReconciliationHandler) loadBatch(c *gin.Context) (*models.ReconciliationBatch, bool) {
	batchID, ok := parseID(c, "batchId", "batch")
	if !ok {
		return nil, false
	}
	batch, err := h.service.GetBatch(batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return nil, false
	}
	return batch, true
}

func (h *ReconciliationHandler) GetBatch(c *gin.Context) {
	batch, ok := h.loadBatch(c)
	if !ok {
		return
	}

	resp := gin.H{
		"batch_id":        batch.ID.String(),
		"kind":            batch.Kind,
		"status":          batch.Status,
		"filename":        batch.Filename,
		"total":           batch.TotalRecords,
		"matched_count":   batch.MatchedCount,
		"divergent_count": batch.DivergentCount,
		"review_count":    batch.ReviewCount,
		"summary":         batch.Summary,
		"parameters":      batch.Parameters,
		"error":           batch.Error,
		"started_at":      batch.StartedAt,
		"completed_at":    batch.CompletedAt,
	}
	if p, ok := h.service.Progress(batch.ID); ok {
		resp["stage"] = p.Stage
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReconciliationHandler) ListResults(c *gin.Context) {
	batchID, ok := parseID(c, "batchId", "batch")
	if !ok {
		return
	}

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxPageSize)
	}

	items, nextCursor, hasMore, err := h.service.ListResults(batchID, c.Query("status"), c.Query("cursor"), limit)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	stats, err := h.service.GetBatchStats(batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
		"stats":       stats,
	})
}

func (h *ReconciliationHandler) ListBuckets(c *gin.Context) {
	batchID, ok := parseID(c, "batchId", "batch")
	if !ok {
		return
	}

	kind := strings.ToLower(c.Query("kind"))
	if kind != "" && kind != string(netting.KindInvoice) && kind != string(netting.KindReceipt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be invoice or receipt"})
		return
	}

	buckets, err := h.service.ListBuckets(batchID, kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": buckets})
}

// DownloadReport serves the xlsx written by a completed batch.
func (h *ReconciliationHandler) DownloadReport(c *gin.Context) {
	batch, ok := h.loadBatch(c)
	if !ok {
		return
	}
	if batch.Status != models.BatchStatusCompleted || batch.ReportPath == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "report not available", "status": batch.Status})
		return
	}
	if _, err := os.Stat(batch.ReportPath); err != nil {
		c.JSON(http.StatusGone, gin.H{"error": "report file missing"})
		return
	}
	c.FileAttachment(batch.ReportPath, filepath.Base(batch.ReportPath))
}

type decisionPayload struct {
	PerformedBy string `json:"performed_by"`
	Reason      string `json:"reason"`
}

func (h *ReconciliationHandler) decide(c *gin.Context, apply func(uuid.UUID, string, string) (*models.MatchResult, error), message string) {
	id, ok := parseID(c, "id", "result")
	if !ok {
		return
	}

	var payload decisionPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}

	result, err := apply(id, payload.PerformedBy, payload.Reason)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": message, "result": result})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
	case errors.Is(err, service.ErrNotReviewable), errors.Is(err, service.ErrAlreadyDecided):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *ReconciliationHandler) ConfirmResult(c *gin.Context) {
	h.decide(c, h.service.ConfirmResult, "suggestion confirmed")
}

func (h *ReconciliationHandler) RejectResult(c *gin.Context) {
	h.decide(c, h.service.RejectResult, "suggestion rejected")
}
