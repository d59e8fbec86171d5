package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/provider"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/schema"
)

func testRequest() *schema.ChatRequest {
	return &schema.ChatRequest{
		Model: "anthropic/claude-3-5-sonnet-20241022",
		Messages: []schema.Message{
			{Role: schema.RoleSystem, Content: "Be terse."},
			{Role: schema.RoleSystem, Content: "Answer in English."},
			{Role: schema.RoleUser, Content: "Say hi"},
		},
	}
}

func TestChatCompletion_SystemConcatAndDefaults(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test" {
			t.Errorf("unexpected api key header %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("missing anthropic-version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"id":"msg_1",
			"content":[{"type":"text","text":"hi"}],
			"stop_reason":"end_turn",
			"usage":{"input_tokens":12,"output_tokens":4}
		}`))
	}))
	defer server.Close()

	a := newAdapter(provider.Options{BaseURL: server.URL})
	resp, errCall := a.ChatCompletion(context.Background(), testRequest(), "sk-ant-test")
	if errCall != nil {
		t.Fatalf("expected success, got %v", errCall)
	}

	if payload["system"] != "Be terse. Answer in English." {
		t.Fatalf("expected space-joined system field, got %v", payload["system"])
	}
	if payload["max_tokens"] != float64(defaultMaxTokens) {
		t.Fatalf("expected default max_tokens, got %v", payload["max_tokens"])
	}
	msgs := payload["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("system messages must not appear in messages array: %v", msgs)
	}
	if payload["model"] != "claude-3-5-sonnet-20241022" {
		t.Fatalf("expected native model, got %v", payload["model"])
	}

	if resp.Model != "anthropic/claude-3-5-sonnet-20241022" {
		t.Fatalf("expected prefixed model echo, got %q", resp.Model)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Fatalf("expected end_turn mapped to stop, got %q", resp.Choices[0].FinishReason)
	}
	if resp.Usage.PromptTokens != 12 || resp.Usage.CompletionTokens != 4 || resp.Usage.TotalTokens != 16 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestChatCompletion_ExplicitMaxTokens(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"id":"msg_1","content":[],"stop_reason":"max_tokens","usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer server.Close()

	req := testRequest()
	maxTokens := 128
	req.MaxTokens = &maxTokens

	a := newAdapter(provider.Options{BaseURL: server.URL})
	resp, errCall := a.ChatCompletion(context.Background(), req, "sk-ant-test")
	if errCall != nil {
		t.Fatalf("expected success, got %v", errCall)
	}
	if payload["max_tokens"] != float64(128) {
		t.Fatalf("expected max_tokens=128, got %v", payload["max_tokens"])
	}
	if resp.Choices[0].FinishReason != "length" {
		t.Fatalf("expected max_tokens mapped to length, got %q", resp.Choices[0].FinishReason)
	}
}

func TestChatCompletion_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad request"}}`))
	}))
	defer server.Close()

	a := newAdapter(provider.Options{BaseURL: server.URL})
	_, errCall := a.ChatCompletion(context.Background(), testRequest(), "sk-ant-test")
	if errCall == nil {
		t.Fatal("expected provider error")
	}
	if errCall.Type != provider.ErrTypeAPI || errCall.Message != "bad request" {
		t.Fatalf("unexpected error: %+v", errCall)
	}
}

func TestChatCompletionStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`{"type":"message_start","message":{"usage":{"input_tokens":9}}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"he"}}`,
			`not json`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"llo"}}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}`,
			`{"type":"message_stop"}`,
		}
		for _, frame := range frames {
			_, _ = w.Write([]byte("event: x\ndata: " + frame + "\n\n"))
		}
	}))
	defer server.Close()

	a := newAdapter(provider.Options{BaseURL: server.URL})
	stream, errCall := a.ChatCompletionStream(context.Background(), testRequest(), "sk-ant-test")
	if errCall != nil {
		t.Fatalf("expected stream, got %v", errCall)
	}

	var chunks []schema.StreamChunk
	for chunk := range stream {
		chunks = append(chunks, chunk)
	}
	// role chunk, two deltas, finish chunk, done sentinel.
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d: %+v", len(chunks), chunks)
	}
	if !chunks[len(chunks)-1].Done {
		t.Fatal("expected terminal done chunk")
	}
	if chunks[1].Choices[0].Delta.Content != "he" || chunks[2].Choices[0].Delta.Content != "llo" {
		t.Fatalf("unexpected deltas: %+v", chunks)
	}
	finish := chunks[3]
	if finish.Usage == nil || finish.Usage.PromptTokens != 9 || finish.Usage.CompletionTokens != 5 || finish.Usage.TotalTokens != 14 {
		t.Fatalf("unexpected usage on finish chunk: %+v", finish.Usage)
	}
	if finish.Choices[0].FinishReason == nil || *finish.Choices[0].FinishReason != "stop" {
		t.Fatalf("unexpected finish reason: %+v", finish.Choices)
	}
	for _, chunk := range chunks[:len(chunks)-1] {
		if chunk.ID != chunks[0].ID || chunk.Created != chunks[0].Created {
			t.Fatal("expected stable synthetic id/created across the stream")
		}
	}
}

func TestChatCompletionStream_UpstreamErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"par"}}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}` + "\n\n"))
	}))
	defer server.Close()

	a := newAdapter(provider.Options{BaseURL: server.URL})
	stream, errCall := a.ChatCompletionStream(context.Background(), testRequest(), "sk-ant-test")
	if errCall != nil {
		t.Fatalf("expected stream, got %v", errCall)
	}

	var chunks []schema.StreamChunk
	for chunk := range stream {
		chunks = append(chunks, chunk)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected delta + error + done, got %+v", chunks)
	}
	if chunks[1].Error == nil || chunks[1].Error.Message != "overloaded" {
		t.Fatalf("expected error chunk, got %+v", chunks[1])
	}
	if !chunks[2].Done {
		t.Fatal("expected done chunk after error chunk")
	}
}
