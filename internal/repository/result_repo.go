package repository

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ledger-reconciliation-backend/internal/models"
)

const insertBatchSize = 500

type ResultRepository struct {
	db *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// SaveRun inserts every result and bucket of a run in one transaction, so a
// batch never ends up half persisted.
func (r *ResultRepository) SaveRun(results []models.MatchResult, buckets []models.DocumentBucket) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if len(results) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(results, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(buckets) > 0 {
			if err := tx.CreateInBatches(buckets, insertBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns up to limit+1 results after the given position so the caller
// can tell whether another page exists.
func (r *ResultRepository) List(batchID uuid.UUID, status string, after int, limit int) ([]models.MatchResult, error) {
	var results []models.MatchResult
	query := r.db.
		Where("batch_id = ?", batchID).
		Order("position ASC").
		Limit(limit + 1)

	if status != "" && !strings.EqualFold(status, "all") {
		query = query.Where("status = ?", status)
	}
	if after >= 0 {
		query = query.Where("position > ?", after)
	}

	err := query.Find(&results).Error
	return results, err
}

func (r *ResultRepository) GetByID(id uuid.UUID) (*models.MatchResult, error) {
	var result models.MatchResult
	if err := r.db.First(&result, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateReviewState records a decision on a review row together with its
// audit entry.
func (r *ResultRepository) UpdateReviewState(result *models.MatchResult, audit *models.MatchAuditLog) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.MatchResult{}).
			Where("id = ?", result.ID).
			Update("review_state", result.ReviewState).Error; err != nil {
			return err
		}
		return tx.Create(audit).Error
	})
}

func (r *ResultRepository) ListBuckets(batchID uuid.UUID, kind string) ([]models.DocumentBucket, error) {
	var buckets []models.DocumentBucket
	query := r.db.Where("batch_id = ?", batchID).Order("kind ASC, identifier ASC")
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	err := query.Find(&buckets).Error
	return buckets, err
}

type StatRow struct {
	Status string
	Count  int64
	Sum    decimal.Decimal
}

// StatusStats groups the results of a batch by status.
func (r *ResultRepository) StatusStats(batchID uuid.UUID) ([]StatRow, error) {
	var rows []StatRow
	err := r.db.Model(&models.MatchResult{}).
		Where("batch_id = ?", batchID).
		Select("status, COUNT(*) as count, COALESCE(SUM(difference),0) as sum").
		Group("status").
		Scan(&rows).Error
	return rows, err
}
