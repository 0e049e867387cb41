package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	ReviewStatePending   = "pending"
	ReviewStateConfirmed = "confirmed"
	ReviewStateRejected  = "rejected"
)

// MatchResult is one persisted row of the CONCILIACAO or REVISAO tables.
// Position keeps the engine order and is the pagination cursor.
type MatchResult struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	BatchID     uuid.UUID `gorm:"index;uniqueIndex:idx_batch_position"`
	Position    int       `gorm:"uniqueIndex:idx_batch_position"`
	Status      string    `gorm:"index"`
	ReviewState string    `gorm:"index"`

	FinancialRow    *int
	FinancialDate   *time.Time
	FinancialType   string
	FinancialText   string
	FinancialAmount decimal.Decimal `gorm:"type:numeric(18,2)"`

	AccountingRow    *int
	AccountingDate   *time.Time
	AccountingType   string
	AccountingText   string
	AccountingAmount decimal.Decimal `gorm:"type:numeric(18,2)"`

	Difference   decimal.Decimal `gorm:"type:numeric(18,2)"`
	Note         string
	Score        float64
	MatchDetails datatypes.JSON
	CreatedAt    time.Time
}
