package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchAuditLog records a manual decision on a review suggestion.
type MatchAuditLog struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	ResultID      uuid.UUID `gorm:"index"`
	BatchID       uuid.UUID `gorm:"index"`
	Action        string
	PreviousState string
	NewState      string
	PerformedBy   string
	Reason        string
	CreatedAt     time.Time
}
