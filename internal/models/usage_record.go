package models

import "time"

// UsageRecord captures one gateway request for analytics and billing export.
type UsageRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrganizationID string `gorm:"type:varchar(64);not null;index"` // Calling organization.
	Provider       string `gorm:"type:varchar(64);not null;index"` // Provider prefix.
	Model          string `gorm:"type:text;not null"`              // Prefixed model string.
	RequestID      string `gorm:"type:varchar(64);index"`          // Gateway request ID.

	PromptTokens     int `gorm:"not null;default:0"` // Prompt token count.
	CompletionTokens int `gorm:"not null;default:0"` // Completion token count.
	TotalTokens      int `gorm:"not null;default:0"` // Total token count.

	CostMicros int64 `gorm:"not null;default:0"` // Cost in micro-dollars.
	LatencyMS  int64 `gorm:"not null;default:0"` // End-to-end latency.

	Streamed bool `gorm:"not null;default:false"` // Whether the call streamed.
	Failed   bool `gorm:"not null;default:false"` // Whether the call failed.

	RequestedAt time.Time `gorm:"not null;index"`          // Request start time (UTC).
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"` // Row creation timestamp.
}
