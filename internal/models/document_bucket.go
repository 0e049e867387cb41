package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DocumentBucket struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BatchID     uuid.UUID       `gorm:"index"`
	Kind        string          `gorm:"index"`
	Identifier  string          `gorm:"index"`
	TotalDebit  decimal.Decimal `gorm:"type:numeric(18,2)"`
	TotalCredit decimal.Decimal `gorm:"type:numeric(18,2)"`
	NetValue    decimal.Decimal `gorm:"type:numeric(18,2)"`
	LineCount   int
	Paired      bool
	PairedWith  string
	CreatedAt   time.Time
}
