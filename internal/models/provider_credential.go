package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProviderCredential stores an encrypted upstream provider API key owned by
// one organization. Plaintext is never persisted; Ciphertext is produced by
// the vault and Prefix/Masked are display-only derivatives.
type ProviderCredential struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrganizationID string `gorm:"type:varchar(64);not null;index:idx_cred_org_provider"` // Owning organization.
	Provider       string `gorm:"type:varchar(64);not null;index:idx_cred_org_provider"` // Provider prefix.

	Ciphertext string         `gorm:"type:text;not null"` // Encrypted key material (base64).
	Prefix     string         `gorm:"type:varchar(16)"`   // First chars of plaintext for display.
	Masked     string         `gorm:"type:text"`          // Fully masked display string.
	KeyInfo    datatypes.JSON `gorm:"type:jsonb"`         // Provider-reported key metadata.

	IsActive   bool       `gorm:"not null;default:true;index"` // Soft-delete flag.
	LastUsedAt *time.Time // Updated on each decrypt-for-use.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
