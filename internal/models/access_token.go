package models

import "time"

// AccessToken is a caller-facing bearer token (PAT). Only the SHA-256 hash of
// the token is stored; the plaintext is shown once at creation.
type AccessToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrganizationID string `gorm:"type:varchar(64);not null;index"`     // Owning organization.
	Name           string `gorm:"type:text"`                           // Display name.
	TokenHash      string `gorm:"type:varchar(64);not null;uniqueIndex"` // SHA-256 hex of the token.
	Scopes         string `gorm:"type:text"`                           // Space-separated scope list.

	IsActive   bool       `gorm:"not null;default:true"` // Revocation flag.
	LastUsedAt *time.Time // Updated on successful authentication.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
