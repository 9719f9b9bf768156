package models

import "time"

// Token sources.
const (
	// TokenSourceLogin marks tokens issued by the login endpoint.
	TokenSourceLogin = "login"
	// TokenSourceManual marks tokens created explicitly by a user.
	TokenSourceManual = "manual"
)

// TokenRecord is the stored bookkeeping entry for an issued bearer token.
// The credential itself carries its own issue/expiry claims; the record adds
// revocability on top.
type TokenRecord struct {
	ID string `gorm:"primaryKey;type:text"` // UUID.

	Token string `gorm:"type:text;not null;uniqueIndex"` // Full signed credential.

	UserID   uint64 `gorm:"not null;index"`     // Issuing user ID.
	Username string `gorm:"type:text;not null"` // Issuing user name at issue time.

	Description string `gorm:"type:text"`          // Free-form label.
	Source      string `gorm:"type:text;not null"` // "login" or "manual".

	// IsActive flips to false on revocation; the record is retained so the
	// credential stays rejectable until it is deleted or cleaned up.
	IsActive bool `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null"` // Issue timestamp.
	ExpiresAt time.Time `gorm:"not null"` // Embedded expiry, mirrored for listing.

	RevokedAt *time.Time // Revocation timestamp when inactive.
	RevokedBy string     `gorm:"type:text"` // Username that revoked the token.
}
