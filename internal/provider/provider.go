package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/schema"
)

// Error classification values. Transport failures never cross the adapter
// boundary as raw errors; they are folded into these types.
const (
	ErrTypeAPI     = "api_error"
	ErrTypeNetwork = "network"
	ErrTypeTimeout = "timeout"
	ErrTypeDecode  = "decode"
)

// Error is the uniform failure value returned by all adapters.
type Error struct {
	Provider   string `json:"provider"`
	Type       string `json:"error_type"`
	Message    string `json:"message"`
	Status     int    `json:"status,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Type, e.Message)
}

// Adapter translates between the unified chat schema and one provider's
// native wire format. Adapters are constructed per call chain and own their
// outbound HTTP client; they must not be shared across credentials.
type Adapter interface {
	// ChatCompletion performs a buffered completion call.
	ChatCompletion(ctx context.Context, req *schema.ChatRequest, apiKey string) (*schema.ChatResponse, *Error)
	// ChatCompletionStream performs a streaming call. The returned channel is
	// finite and not restartable: it always ends with a chunk whose Done flag
	// is set, preceded by an error chunk when the upstream failed mid-stream,
	// and is closed afterwards.
	ChatCompletionStream(ctx context.Context, req *schema.ChatRequest, apiKey string) (<-chan schema.StreamChunk, *Error)
	// SupportedModels lists the provider-native model names this adapter serves.
	SupportedModels() []string
	// ExtractNativeModel strips the gateway's provider prefix from a full
	// "<provider>/<model>" string.
	ExtractNativeModel(fullModel string) string
}

// Options configures a newly constructed adapter.
type Options struct {
	// BaseURL overrides the provider's default endpoint, used by tests and
	// self-hosted compatible deployments.
	BaseURL string
	// RequestTimeout bounds buffered calls.
	RequestTimeout time.Duration
	// StreamTimeout bounds streaming calls, which legitimately run longer.
	StreamTimeout time.Duration
}

// ClassifyTransport folds a transport-level error into the adapter error
// shape, distinguishing timeouts from other network failures.
func ClassifyTransport(providerName string, err error) *Error {
	if err == nil {
		return nil
	}
	errType := ErrTypeNetwork
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) || isTimeout(err) {
		errType = ErrTypeTimeout
	}
	return &Error{Provider: providerName, Type: errType, Message: err.Error()}
}

func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

// RetryAfterSeconds parses a Retry-After response header as whole seconds.
func RetryAfterSeconds(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	var seconds int
	if _, errScan := fmt.Sscanf(raw, "%d", &seconds); errScan != nil || seconds < 0 {
		return 0
	}
	return seconds
}
