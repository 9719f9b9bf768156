package models

import "time"

// UsageRecord represents one use or sale of a card entry. CardID is a weak
// reference; deleting a card does not cascade to its records.
type UsageRecord struct {
	ID string `gorm:"primaryKey;type:text"` // UUID.

	CardID string `gorm:"type:text;not null;index"` // Owning card ID.
	Date   Date   `gorm:"not null"`                 // Day the entry was used or sold.

	IsUsed    bool     `gorm:"not null;default:false"` // Entry was consumed.
	IsSold    bool     `gorm:"not null;default:false"` // Entry was sold to someone else.
	SoldPrice *float64 // Sale price, meaningful only when IsSold.

	Notes string `gorm:"type:text"` // Free-form notes.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
