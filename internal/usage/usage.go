package usage

import (
	"context"
	"math"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/models"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/schema"
)

// Record is one completed gateway request as seen by the recorder.
type Record struct {
	OrganizationID string
	Provider       string
	Model          string
	RequestID      string
	Usage          schema.Usage
	LatencyMS      int64
	Streamed       bool
	Failed         bool
	RequestedAt    time.Time
}

// Recorder persists usage rows off the request path. Failures are logged
// and dropped; accounting never blocks or fails a completion.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a recorder backed by GORM.
func NewRecorder(db *gorm.DB) *Recorder { return &Recorder{db: db} }

// Record writes one usage row. Callers run it off the request path; the
// write uses its own deadline so a wedged database cannot leak goroutines.
func (r *Recorder) Record(record Record) {
	if r == nil || r.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	totalTokens := record.Usage.TotalTokens
	if totalTokens == 0 {
		totalTokens = record.Usage.PromptTokens + record.Usage.CompletionTokens
	}

	row := models.UsageRecord{
		OrganizationID:   strings.TrimSpace(record.OrganizationID),
		Provider:         strings.TrimSpace(record.Provider),
		Model:            strings.TrimSpace(record.Model),
		RequestID:        record.RequestID,
		PromptTokens:     record.Usage.PromptTokens,
		CompletionTokens: record.Usage.CompletionTokens,
		TotalTokens:      totalTokens,
		CostMicros:       costMicros(record),
		LatencyMS:        record.LatencyMS,
		Streamed:         record.Streamed,
		Failed:           record.Failed,
		RequestedAt:      normalizeTime(record.RequestedAt),
	}

	if errCreate := r.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).Warn("usage: failed to persist record")
	}
}

// Summary aggregates an organization's usage for the admin surface.
type Summary struct {
	Requests         int64 `json:"requests"`
	Failed           int64 `json:"failed"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	CostMicros       int64 `json:"cost_micros"`
}

// Summarize reports totals for one organization since a point in time.
func (r *Recorder) Summarize(ctx context.Context, organizationID string, since time.Time) (*Summary, error) {
	var out Summary
	errScan := r.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Select(
			"COUNT(*) AS requests",
			"COALESCE(SUM(CASE WHEN failed THEN 1 ELSE 0 END), 0) AS failed",
			"COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens",
			"COALESCE(SUM(completion_tokens), 0) AS completion_tokens",
			"COALESCE(SUM(total_tokens), 0) AS total_tokens",
			"COALESCE(SUM(cost_micros), 0) AS cost_micros",
		).
		Where("organization_id = ? AND requested_at >= ?", organizationID, since.UTC()).
		Scan(&out).Error
	if errScan != nil {
		return nil, errScan
	}
	return &out, nil
}

// modelPrice is USD per million tokens.
type modelPrice struct {
	prompt     float64
	completion float64
}

// priceTable carries published list prices. Unknown models cost zero
// rather than guessing.
var priceTable = map[string]modelPrice{
	"openai/gpt-4":            {prompt: 30, completion: 60},
	"openai/gpt-4-turbo":      {prompt: 10, completion: 30},
	"openai/gpt-4o":           {prompt: 2.5, completion: 10},
	"openai/gpt-4o-mini":      {prompt: 0.15, completion: 0.6},
	"openai/gpt-3.5-turbo":    {prompt: 0.5, completion: 1.5},
	"anthropic/claude-3-opus": {prompt: 15, completion: 75},
	"anthropic/claude-3-5-sonnet": {
		prompt:     3,
		completion: 15,
	},
	"anthropic/claude-3-5-haiku": {prompt: 0.8, completion: 4},
	"anthropic/claude-3-haiku":   {prompt: 0.25, completion: 1.25},
}

// costMicros prices a request in millionths of a dollar. Token prices are
// per million tokens, so micros equals price times token count.
func costMicros(record Record) int64 {
	if record.Failed {
		return 0
	}
	key := strings.ToLower(strings.TrimSpace(record.Provider)) + "/" + strings.TrimSpace(record.Model)
	price, ok := priceTable[key]
	if !ok {
		price, ok = priceTable[trimDateSuffix(key)]
	}
	if !ok {
		return 0
	}
	total := float64(record.Usage.PromptTokens)*price.prompt +
		float64(record.Usage.CompletionTokens)*price.completion
	return int64(math.Round(total))
}

// trimDateSuffix maps dated model snapshots like claude-3-haiku-20240307
// onto their base model's price entry.
func trimDateSuffix(key string) string {
	i := strings.LastIndex(key, "-")
	if i < 0 || len(key)-i-1 != 8 {
		return key
	}
	for _, r := range key[i+1:] {
		if r < '0' || r > '9' {
			return key
		}
	}
	return key[:i]
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
