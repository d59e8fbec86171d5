package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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
const Name = "openai"

const defaultBaseURL = "https://api.openai.com/v1"

func init() {
	provider.Register(Name, func(opts provider.Options) provider.Adapter {
		return newAdapter(opts)
	})
}

// Adapter serves OpenAI and OpenAI-compatible chat completion APIs.
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
	return []string{"gpt-4", "gpt-4-turbo", "gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"}
}

// ExtractNativeModel strips the "openai/" prefix from a full model string.
func (a *Adapter) ExtractNativeModel(fullModel string) string {
	return strings.TrimPrefix(strings.TrimSpace(fullModel), Name+"/")
}

// chatPayload is the native request body. Unified messages pass through
// unchanged, system messages included, since the API accepts them inline.
type chatPayload struct {
	Model            string           `json:"model"`
	Messages         []schema.Message `json:"messages"`
	Temperature      *float64         `json:"temperature,omitempty"`
	TopP             *float64         `json:"top_p,omitempty"`
	MaxTokens        *int             `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64         `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64         `json:"presence_penalty,omitempty"`
	Stop             []string         `json:"stop,omitempty"`
	Stream           bool             `json:"stream,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int            `json:"index"`
		Message      schema.Message `json:"message"`
		FinishReason string         `json:"finish_reason"`
	} `json:"choices"`
	Usage schema.Usage `json:"usage"`
}

type streamEvent struct {
	Choices []struct {
		Index        int          `json:"index"`
		Delta        schema.Delta `json:"delta"`
		FinishReason *string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *schema.Usage `json:"usage"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func buildPayload(req *schema.ChatRequest, nativeModel string, stream bool) chatPayload {
	return chatPayload{
		Model:            nativeModel,
		Messages:         req.Messages,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             []string(req.Stop),
		Stream:           stream,
	}
}

func (a *Adapter) newRequest(ctx context.Context, payload chatPayload, apiKey string) (*http.Request, *provider.Error) {
	body, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return nil, &provider.Error{Provider: Name, Type: provider.ErrTypeDecode, Message: errMarshal.Error()}
	}
	httpReq, errReq := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if errReq != nil {
		return nil, &provider.Error{Provider: Name, Type: provider.ErrTypeNetwork, Message: errReq.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
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

	var native chatResponse
	if errDecode := json.NewDecoder(resp.Body).Decode(&native); errDecode != nil {
		return nil, &provider.Error{Provider: Name, Type: provider.ErrTypeDecode, Message: errDecode.Error()}
	}

	out := &schema.ChatResponse{
		ID:      native.ID,
		Object:  "chat.completion",
		Created: native.Created,
		Model:   req.Model,
		Usage:   native.Usage,
	}
	if out.ID == "" {
		out.ID = "chatcmpl-" + uuid.NewString()
	}
	if out.Created == 0 {
		out.Created = time.Now().Unix()
	}
	for _, choice := range native.Choices {
		out.Choices = append(out.Choices, schema.Choice{
			Index:        choice.Index,
			Message:      choice.Message,
			FinishReason: choice.FinishReason,
		})
	}
	out.Usage.Normalize()
	return out, nil
}

// ChatCompletionStream performs a streaming call and normalizes the native
// SSE events into unified chunks.
func (a *Adapter) ChatCompletionStream(ctx context.Context, req *schema.ChatRequest, apiKey string) (<-chan schema.StreamChunk, *provider.Error) {
	nativeModel := a.ExtractNativeModel(req.Model)
	httpReq, errBuild := a.newRequest(ctx, buildPayload(req, nativeModel, true), apiKey)
	if errBuild != nil {
		return nil, errBuild
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	// The adapter client's timeout covers buffered calls; streams get their
	// own longer budget on a per-call client copy.
	streamClient := &http.Client{Transport: a.client.Transport, Timeout: a.streamTimeout}
	resp, errDo := streamClient.Do(httpReq)
	if errDo != nil {
		return nil, provider.ClassifyTransport(Name, errDo)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, parseAPIError(resp)
	}

	// One synthetic id/created pair per stream, reused on every chunk.
	streamID := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	out := make(chan schema.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		sawDone := false
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				sawDone = true
				break
			}
			var event streamEvent
			if errUnmarshal := json.Unmarshal([]byte(data), &event); errUnmarshal != nil {
				// One malformed frame must not kill the stream.
				log.WithError(errUnmarshal).Debug("openai: skipping malformed stream frame")
				continue
			}
			chunk := schema.StreamChunk{
				ID:      streamID,
				Object:  "chat.completion.chunk",
				Created: created,
				Model:   req.Model,
				Usage:   event.Usage,
			}
			for _, choice := range event.Choices {
				chunk.Choices = append(chunk.Choices, schema.StreamChoice{
					Index:        choice.Index,
					Delta:        choice.Delta,
					FinishReason: choice.FinishReason,
				})
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				emitTerminal(ctx, out, streamID, created, req.Model, fmt.Errorf("client disconnected"))
				return
			}
		}

		if errScan := scanner.Err(); errScan != nil && !sawDone {
			emitTerminal(ctx, out, streamID, created, req.Model, errScan)
			return
		}
		emitTerminal(ctx, out, streamID, created, req.Model, nil)
	}()
	return out, nil
}

// emitTerminal sends an error chunk when streamErr is set, then the done
// sentinel, exactly once per stream.
func emitTerminal(ctx context.Context, out chan<- schema.StreamChunk, id string, created int64, model string, streamErr error) {
	if streamErr != nil {
		chunk := schema.StreamChunk{
			ID:      id,
			Created: created,
			Model:   model,
			Error:   &schema.StreamError{Type: provider.ErrTypeNetwork, Message: streamErr.Error()},
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
		}
	}
	select {
	case out <- schema.StreamChunk{Done: true}:
	case <-ctx.Done():
	}
}
