package models

import (
	"time"

	"gorm.io/datatypes"
)

// PauseRecord is a suspension interval owned by a single card. A nil EndDate
// means the pause is open-ended and still in effect.
type PauseRecord struct {
	ID        string `json:"id"`
	StartDate Date   `json:"startDate"`
	EndDate   *Date  `json:"endDate"`
	Reason    string `json:"reason"`
}

// MembershipCard represents a prepaid membership card with a finite validity
// window and an owned pause history.
type MembershipCard struct {
	ID string `gorm:"primaryKey;type:text"` // UUID, immutable after creation.

	Name string `gorm:"type:text;not null"` // Card display name.
	Type string `gorm:"type:text"`          // Free-form card category.

	TotalDays     int `gorm:"not null;default:0"` // Nominal validity length in days.
	RemainingDays int `gorm:"not null;default:0"` // Usable days left; cache refreshed by the pause engine.

	StartDate Date `gorm:"not null"` // First day of validity.
	EndDate   Date `gorm:"not null"` // Last day of validity; shifted by pause scheduling.

	// IsActive caches the negation of "paused today". It is refreshed after
	// every pause mutation and on card reads; the pause history is the source
	// of truth.
	IsActive bool `gorm:"not null;default:true"`

	PauseHistory datatypes.JSONType[[]PauseRecord] `gorm:"column:pause_history"` // Owned pause records, insertion order.

	Price               float64 `gorm:"not null;default:0"` // Purchase price of the card.
	ExpectedPricePerUse float64 `gorm:"not null;default:0"` // Target per-use cost for statistics.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Pauses returns the card's pause records in insertion order.
func (c *MembershipCard) Pauses() []PauseRecord {
	return c.PauseHistory.Data()
}

// SetPauses replaces the card's pause history.
func (c *MembershipCard) SetPauses(records []PauseRecord) {
	c.PauseHistory = datatypes.NewJSONType(records)
}
