package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/auth"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/config"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/db"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/models"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/provider"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/schema"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/vault"
)

// fakeAdapter satisfies provider.Adapter for handler tests.
type fakeAdapter struct {
	resp      *schema.ChatResponse
	callErr   *provider.Error
	chunks    []schema.StreamChunk
	streamErr *provider.Error

	gotKey string
	gotReq *schema.ChatRequest
}

func (f *fakeAdapter) ChatCompletion(_ context.Context, req *schema.ChatRequest, apiKey string) (*schema.ChatResponse, *provider.Error) {
	f.gotReq = req
	f.gotKey = apiKey
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.resp, nil
}

func (f *fakeAdapter) ChatCompletionStream(_ context.Context, req *schema.ChatRequest, apiKey string) (<-chan schema.StreamChunk, *provider.Error) {
	f.gotReq = req
	f.gotKey = apiKey
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	out := make(chan schema.StreamChunk, len(f.chunks))
	for _, chunk := range f.chunks {
		out <- chunk
	}
	close(out)
	return out, nil
}

func (f *fakeAdapter) SupportedModels() []string { return []string{"test-model"} }

func (f *fakeAdapter) ExtractNativeModel(fullModel string) string {
	_, native, _ := schema.SplitModel(fullModel)
	return native
}

type testEnv struct {
	engine  *gin.Engine
	conn    *gorm.DB
	server  *Server
	token   string
	adapter *fakeAdapter
}

func newTestEnv(t *testing.T, cacheEnabled bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	t.Cleanup(func() { _ = db.Close(conn) })

	cfg := &config.Config{}
	cfg.Cache.Enabled = cacheEnabled
	cfg.Cache.DefaultTTL = config.Duration(time.Minute)
	cfg.RateLimit = config.RateLimitConfig{
		PerMinute: 1000, PerHour: 10000, Burst: 1000, BurstWindow: config.Duration(10 * time.Second),
	}
	cfg.Upstream = config.UpstreamConfig{
		RequestTimeout: config.Duration(5 * time.Second),
		StreamTimeout:  config.Duration(5 * time.Second),
	}

	v, errVault := vault.New(vault.Options{Secret: "gateway-test-secret"})
	if errVault != nil {
		t.Fatalf("vault: %v", errVault)
	}

	server := NewServer(cfg, conn, nil, v)
	adapter := &fakeAdapter{}
	server.chat.adapterFor = func(string) (provider.Adapter, error) { return adapter, nil }

	engine := gin.New()
	server.RegisterRoutes(engine)

	token := seedAccessToken(t, conn, "org-1", "api:read api:write")
	seedCredential(t, conn, v, "org-1", "openai", "sk-unit-test-key-0123456789")

	return &testEnv{engine: engine, conn: conn, server: server, token: token, adapter: adapter}
}

func seedAccessToken(t *testing.T, conn *gorm.DB, org, scopes string) string {
	t.Helper()
	token, errGen := auth.GenerateToken()
	if errGen != nil {
		t.Fatalf("generate token: %v", errGen)
	}
	row := models.AccessToken{
		OrganizationID: org,
		Name:           "test",
		TokenHash:      auth.HashToken(token),
		Scopes:         scopes,
		IsActive:       true,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed token: %v", errCreate)
	}
	return token
}

func seedCredential(t *testing.T, conn *gorm.DB, v *vault.Vault, org, providerName, key string) {
	t.Helper()
	ciphertext, errEncrypt := v.Encrypt(key)
	if errEncrypt != nil {
		t.Fatalf("encrypt: %v", errEncrypt)
	}
	row := models.ProviderCredential{
		OrganizationID: org,
		Provider:       providerName,
		Ciphertext:     ciphertext,
		Prefix:         vault.Prefix(key, 0),
		Masked:         vault.Mask(key, 0),
		IsActive:       true,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed credential: %v", errCreate)
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

const chatBody = `{"model":"openai/gpt-4o","messages":[{"role":"user","content":"hi"}]}`

func TestChatCompletions_Success(t *testing.T) {
	env := newTestEnv(t, false)
	env.adapter.resp = &schema.ChatResponse{
		ID:      "chatcmpl-1",
		Object:  "chat.completion",
		Created: 1700000000,
		Model:   "gpt-4o",
		Choices: []schema.Choice{{Message: schema.Message{Role: "assistant", Content: "hello"}, FinishReason: "stop"}},
		Usage:   schema.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
	}

	w := env.do(http.MethodPost, "/v1/chat/completions", chatBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp schema.ChatResponse
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if resp.Model != "openai/gpt-4o" {
		t.Fatalf("response must echo the prefixed model, got %q", resp.Model)
	}
	if env.adapter.gotKey != "sk-unit-test-key-0123456789" {
		t.Fatalf("adapter must receive the decrypted key, got %q", env.adapter.gotKey)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("every response must carry a request id")
	}
}

func TestChatCompletions_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, false)

	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"no provider prefix", `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`},
		{"empty messages", `{"model":"openai/gpt-4o","messages":[]}`},
		{"bad role", `{"model":"openai/gpt-4o","messages":[{"role":"robot","content":"hi"}]}`},
	}
	for _, tc := range cases {
		w := env.do(http.MethodPost, "/v1/chat/completions", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", tc.name, w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "validation_error") {
			t.Fatalf("%s: expected validation envelope, got %s", tc.name, w.Body.String())
		}
	}
}

func TestChatCompletions_MissingCredential(t *testing.T) {
	env := newTestEnv(t, false)

	body := `{"model":"anthropic/claude-3-haiku","messages":[{"role":"user","content":"hi"}]}`
	w := env.do(http.MethodPost, "/v1/chat/completions", body)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestChatCompletions_UpstreamErrors(t *testing.T) {
	env := newTestEnv(t, false)

	env.adapter.callErr = &provider.Error{Provider: "openai", Type: provider.ErrTypeTimeout, Message: "deadline exceeded"}
	if w := env.do(http.MethodPost, "/v1/chat/completions", chatBody); w.Code != http.StatusGatewayTimeout {
		t.Fatalf("timeout: expected 504, got %d", w.Code)
	}

	env.adapter.callErr = &provider.Error{Provider: "openai", Type: provider.ErrTypeAPI, Status: 429, Message: "slow down", RetryAfter: 9}
	w := env.do(http.MethodPost, "/v1/chat/completions", chatBody)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("upstream 429: expected 429, got %d", w.Code)
	}

	env.adapter.callErr = &provider.Error{Provider: "openai", Type: provider.ErrTypeAPI, Status: 401, Message: "bad key"}
	if w := env.do(http.MethodPost, "/v1/chat/completions", chatBody); w.Code != http.StatusInternalServerError {
		t.Fatalf("upstream 401: expected 500 configuration error, got %d", w.Code)
	}

	env.adapter.callErr = &provider.Error{Provider: "openai", Type: provider.ErrTypeNetwork, Message: "connection refused"}
	if w := env.do(http.MethodPost, "/v1/chat/completions", chatBody); w.Code != http.StatusBadGateway {
		t.Fatalf("network: expected 502, got %d", w.Code)
	}
}

func TestChatCompletions_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, false)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatBody))
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestChatCompletionsStream_FramesAndDone(t *testing.T) {
	env := newTestEnv(t, false)
	finish := "stop"
	env.adapter.chunks = []schema.StreamChunk{
		{ID: "c1", Object: "chat.completion.chunk", Model: "gpt-4o",
			Choices: []schema.StreamChoice{{Delta: schema.Delta{Role: "assistant"}}}},
		{ID: "c1", Object: "chat.completion.chunk", Model: "gpt-4o",
			Choices: []schema.StreamChoice{{Delta: schema.Delta{Content: "hello"}}}},
		{ID: "c1", Object: "chat.completion.chunk", Model: "gpt-4o",
			Choices: []schema.StreamChoice{{FinishReason: &finish}},
			Usage:   &schema.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}},
		{Done: true},
	}

	w := env.do(http.MethodPost, "/v1/chat/completions/stream", chatBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", ct)
	}

	frames := parseSSEFrames(t, w.Body.String())
	if len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %d: %q", len(frames), frames)
	}
	if frames[len(frames)-1] != "[DONE]" {
		t.Fatalf("stream must end with the done sentinel, got %q", frames[len(frames)-1])
	}
	var first schema.StreamChunk
	if errDecode := json.Unmarshal([]byte(frames[0]), &first); errDecode != nil {
		t.Fatalf("decode first frame: %v", errDecode)
	}
	if first.Model != "openai/gpt-4o" {
		t.Fatalf("stream frames must echo the prefixed model, got %q", first.Model)
	}
}

func TestChatCompletionsStream_MidStreamError(t *testing.T) {
	env := newTestEnv(t, false)
	env.adapter.chunks = []schema.StreamChunk{
		{ID: "c1", Choices: []schema.StreamChoice{{Delta: schema.Delta{Content: "par"}}}},
		{Error: &schema.StreamError{Type: "network", Message: "connection reset"}},
		{Done: true},
	}

	w := env.do(http.MethodPost, "/v1/chat/completions/stream", chatBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status is committed before the failure, got %d", w.Code)
	}
	frames := parseSSEFrames(t, w.Body.String())
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d: %q", len(frames), frames)
	}
	if !strings.Contains(frames[1], "connection reset") {
		t.Fatalf("error frame must carry the failure, got %q", frames[1])
	}
	if frames[2] != "[DONE]" {
		t.Fatal("done sentinel must follow the error frame")
	}
}

func TestChatCompletionsStream_StartupFailureIsJSON(t *testing.T) {
	env := newTestEnv(t, false)
	env.adapter.streamErr = &provider.Error{Provider: "openai", Type: provider.ErrTypeNetwork, Message: "no route"}

	w := env.do(http.MethodPost, "/v1/chat/completions/stream", chatBody)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("pre-stream failure must be a JSON error, got %d", w.Code)
	}
	if strings.Contains(w.Header().Get("Content-Type"), "text/event-stream") {
		t.Fatal("pre-stream failure must not commit to SSE")
	}
}

func parseSSEFrames(t *testing.T, body string) []string {
	t.Helper()
	frames := make([]string, 0, 8)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	return frames
}
