package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Message roles accepted in a unified chat request.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrMissingProviderPrefix indicates a model string without a provider prefix.
var ErrMissingProviderPrefix = errors.New("model must be formatted as \"<provider>/<model>\"")

// Message is a single entry in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ChatRequest is the unified chat completion request accepted by the gateway.
type ChatRequest struct {
	Model            string     `json:"model"`
	Messages         []Message  `json:"messages"`
	Temperature      *float64   `json:"temperature,omitempty"`
	TopP             *float64   `json:"top_p,omitempty"`
	MaxTokens        *int       `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64   `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64   `json:"presence_penalty,omitempty"`
	Stop             StopValues `json:"stop,omitempty"`
	Stream           bool       `json:"stream,omitempty"`
}

// Validate checks the request for client errors before dispatch.
func (r *ChatRequest) Validate() error {
	if r == nil {
		return errors.New("empty request body")
	}
	if strings.TrimSpace(r.Model) == "" {
		return errors.New("model is required")
	}
	if len(r.Messages) == 0 {
		return errors.New("at least one message is required")
	}
	for i, msg := range r.Messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("messages[%d]: invalid role %q", i, msg.Role)
		}
	}
	if _, _, err := SplitModel(r.Model); err != nil {
		return err
	}
	return nil
}

// SplitModel splits "<provider>/<model>" into its provider prefix and the
// provider-native model name. The native name may itself contain slashes.
func SplitModel(full string) (provider, model string, err error) {
	trimmed := strings.TrimSpace(full)
	idx := strings.Index(trimmed, "/")
	if idx <= 0 || idx == len(trimmed)-1 {
		return "", "", ErrMissingProviderPrefix
	}
	return trimmed[:idx], trimmed[idx+1:], nil
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Normalize recomputes the total when both component counts are known.
func (u *Usage) Normalize() {
	if u == nil {
		return
	}
	if u.PromptTokens > 0 && u.CompletionTokens > 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
}

// Choice is one generated alternative in a response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// ChatResponse is the unified chat completion response. Model echoes the
// prefixed "<provider>/<model>" string from the request, never the native name.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Delta carries the incremental message fragment of one stream event.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// StreamChoice is one alternative inside a stream chunk.
type StreamChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// StreamChunk is a single unified streaming event. The terminal chunk has
// Done set and carries no choices; a chunk with Error set precedes the
// terminal chunk when the upstream fails mid-stream.
type StreamChunk struct {
	ID      string         `json:"id,omitempty"`
	Object  string         `json:"object,omitempty"`
	Created int64          `json:"created,omitempty"`
	Model   string         `json:"model,omitempty"`
	Choices []StreamChoice `json:"choices,omitempty"`
	Usage   *Usage         `json:"usage,omitempty"`
	Error   *StreamError   `json:"error,omitempty"`

	Done bool `json:"-"`
}

// StreamError describes a mid-stream failure surfaced to the client.
type StreamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
