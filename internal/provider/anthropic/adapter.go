package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/provider"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/schema"
)

// Name is the gateway prefix for this adapter.
const Name = "anthropic"

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"

	// The messages API requires max_tokens; requests without one get this.
	defaultMaxTokens = 4096
)

func init() {
	provider.Register(Name, func(opts provider.Options) provider.Adapter {
		return newAdapter(opts)
	})
}

// Adapter serves the Anthropic messages API.
type Adapter struct {
	baseURL       string
	client        *http.Client
	streamTimeout time.Duration
}

func newAdapter(opts provider.Options) *Adapter {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Minute
	}
	streamTimeout := opts.StreamTimeout
	if streamTimeout <= 0 {
		streamTimeout = 10 * time.Minute
	}
	return &Adapter{
		baseURL:       baseURL,
		client:        &http.Client{Timeout: requestTimeout},
		streamTimeout: streamTimeout,
	}
}

// SupportedModels lists provider-native model names.
func (a *Adapter) SupportedModels() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
		"claude-3-haiku-20240307",
	}
}

// ExtractNativeModel strips the "anthropic/" prefix from a full model string.
func (a *Adapter) ExtractNativeModel(fullModel string) string {
	return strings.TrimPrefix(strings.TrimSpace(fullModel), Name+"/")
}

type nativeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesPayload is the native request body. The API takes a single
// top-level system field, so unified system messages are concatenated there.
type messagesPayload struct {
	Model         string          `json:"model"`
	MaxTokens     int             `json:"max_tokens"`
	Messages      []nativeMessage `json:"messages"`
	System        string          `json:"system,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func buildPayload(req *schema.ChatRequest, nativeModel string, stream bool) messagesPayload {
	payload := messagesPayload{
		Model:         nativeModel,
		MaxTokens:     defaultMaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: []string(req.Stop),
		Stream:        stream,
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		payload.MaxTokens = *req.MaxTokens
	}

	systemParts := make([]string, 0, 1)
	for _, msg := range req.Messages {
		if msg.Role == schema.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		payload.Messages = append(payload.Messages, nativeMessage{Role: msg.Role, Content: msg.Content})
	}
	payload.System = strings.Join(systemParts, " ")
	return payload
}

func (a *Adapter) newRequest(ctx context.Context, payload messagesPayload, apiKey string) (*http.Request, *provider.Error) {
	body, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return nil, &provider.Error{Provider: Name, Type: provider.ErrTypeDecode, Message: errMarshal.Error()}
	}
	httpReq, errReq := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if errReq != nil {
		return nil, &provider.Error{Provider: Name, Type: provider.ErrTypeNetwork, Message: errReq.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	return httpReq, nil
}

func parseAPIError(resp *http.Response) *provider.Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	message := strings.TrimSpace(string(raw))
	var body apiErrorBody
	if errUnmarshal := json.Unmarshal(raw, &body); errUnmarshal == nil && body.Error.Message != "" {
		message = body.Error.Message
	}
	return &provider.Error{
		Provider:   Name,
		Type:       provider.ErrTypeAPI,
		Message:    message,
		Status:     resp.StatusCode,
		RetryAfter: provider.RetryAfterSeconds(resp),
	}
}

// mapStopReason converts native stop reasons to OpenAI-style finish reasons.
func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "":
		return ""
	default:
		return reason
	}
}

// ChatCompletion performs a buffered completion call.
func (a *Adapter) ChatCompletion(ctx context.Context, req *schema.ChatRequest, apiKey string) (*schema.ChatResponse, *provider.Error) {
	nativeModel := a.ExtractNativeModel(req.Model)
	httpReq, errBuild := a.newRequest(ctx, buildPayload(req, nativeModel, false), apiKey)
	if errBuild != nil {
		return nil, errBuild
	}

	resp, errDo := a.client.Do(httpReq)
	if errDo != nil {
		return nil, provider.ClassifyTransport(Name, errDo)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp)
	}

	var native messagesResponse
	if errDecode := json.NewDecoder(resp.Body).Decode(&native); errDecode != nil {
		return nil, &provider.Error{Provider: Name, Type: provider.ErrTypeDecode, Message: errDecode.Error()}
	}

	var text strings.Builder
	for _, block := range native.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	out := &schema.ChatResponse{
		ID:      native.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []schema.Choice{{
			Index:        0,
			Message:      schema.Message{Role: schema.RoleAssistant, Content: text.String()},
			FinishReason: mapStopReason(native.StopReason),
		}},
		Usage: schema.Usage{
			PromptTokens:     native.Usage.InputTokens,
			CompletionTokens: native.Usage.OutputTokens,
		},
	}
	if out.ID == "" {
		out.ID = "chatcmpl-" + uuid.NewString()
	}
	out.Usage.Normalize()
	return out, nil
}

// ChatCompletionStream performs a streaming call, translating the native
// event stream into unified chunks.
func (a *Adapter) ChatCompletionStream(ctx context.Context, req *schema.ChatRequest, apiKey string) (<-chan schema.StreamChunk, *provider.Error) {
	nativeModel := a.ExtractNativeModel(req.Model)
	httpReq, errBuild := a.newRequest(ctx, buildPayload(req, nativeModel, true), apiKey)
	if errBuild != nil {
		return nil, errBuild
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	streamClient := &http.Client{Transport: a.client.Transport, Timeout: a.streamTimeout}
	resp, errDo := streamClient.Do(httpReq)
	if errDo != nil {
		return nil, provider.ClassifyTransport(Name, errDo)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, parseAPIError(resp)
	}

	streamID := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	out := make(chan schema.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		send := func(chunk schema.StreamChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}
		terminate := func(streamErr *schema.StreamError) {
			if streamErr != nil {
				_ = send(schema.StreamChunk{ID: streamID, Created: created, Model: req.Model, Error: streamErr})
			}
			_ = send(schema.StreamChunk{Done: true})
		}

		usage := schema.Usage{}
		sawStop := false
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var event streamEvent
			if errUnmarshal := json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &event); errUnmarshal != nil {
				log.WithError(errUnmarshal).Debug("anthropic: skipping malformed stream frame")
				continue
			}

			switch event.Type {
			case "message_start":
				usage.PromptTokens = event.Message.Usage.InputTokens
				if !send(schema.StreamChunk{
					ID: streamID, Object: "chat.completion.chunk", Created: created, Model: req.Model,
					Choices: []schema.StreamChoice{{Delta: schema.Delta{Role: schema.RoleAssistant}}},
				}) {
					return
				}
			case "content_block_delta":
				if event.Delta.Text == "" {
					continue
				}
				if !send(schema.StreamChunk{
					ID: streamID, Object: "chat.completion.chunk", Created: created, Model: req.Model,
					Choices: []schema.StreamChoice{{Delta: schema.Delta{Content: event.Delta.Text}}},
				}) {
					return
				}
			case "message_delta":
				usage.CompletionTokens = event.Usage.OutputTokens
				usage.Normalize()
				finish := mapStopReason(event.Delta.StopReason)
				chunk := schema.StreamChunk{
					ID: streamID, Object: "chat.completion.chunk", Created: created, Model: req.Model,
					Usage: &usage,
				}
				if finish != "" {
					chunk.Choices = []schema.StreamChoice{{Delta: schema.Delta{}, FinishReason: &finish}}
				}
				if !send(chunk) {
					return
				}
			case "message_stop":
				sawStop = true
			case "error":
				terminate(&schema.StreamError{Type: provider.ErrTypeAPI, Message: event.Error.Message})
				return
			}
			if sawStop {
				break
			}
		}

		if errScan := scanner.Err(); errScan != nil && !sawStop {
			terminate(&schema.StreamError{Type: provider.ErrTypeNetwork, Message: errScan.Error()})
			return
		}
		terminate(nil)
	}()
	return out, nil
}
