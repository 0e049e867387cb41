package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	BatchKindBankLedger = "bank_ledger"
	BatchKindCustomer   = "customer"

	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
)

type ReconciliationBatch struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind              string    `gorm:"index"`
	Filename          string
	SecondaryFilename string
	TotalRecords      int
	MatchedCount      int
	DivergentCount    int
	ReviewCount       int
	Status            string `gorm:"index"`
	Error             string
	Parameters        datatypes.JSON
	Summary           datatypes.JSON
	ReportPath        string
	StartedAt         time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
}
