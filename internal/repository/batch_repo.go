package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ledger-reconciliation-backend/internal/models"
)

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(batch *models.ReconciliationBatch) error {
	return r.db.Create(batch).Error
}

func (r *BatchRepository) GetByID(id uuid.UUID) (*models.ReconciliationBatch, error) {
	var batch models.ReconciliationBatch
	if err := r.db.First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// Complete stores the outcome counters, summary and report path and marks
// the batch completed.
func (r *BatchRepository) Complete(batch *models.ReconciliationBatch) error {
	now := time.Now()
	return r.db.Model(&models.ReconciliationBatch{}).
		Where("id = ?", batch.ID).
		Updates(map[string]interface{}{
			"total_records":   batch.TotalRecords,
			"matched_count":   batch.MatchedCount,
			"divergent_count": batch.DivergentCount,
			"review_count":    batch.ReviewCount,
			"summary":         batch.Summary,
			"report_path":     batch.ReportPath,
			"status":          models.BatchStatusCompleted,
			"completed_at":    now,
		}).Error
}

// Fail marks the batch failed with the error shown to the user.
func (r *BatchRepository) Fail(id uuid.UUID, message string) error {
	return r.db.Model(&models.ReconciliationBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.BatchStatusFailed,
			"error":        message,
			"completed_at": time.Now(),
		}).Error
}
