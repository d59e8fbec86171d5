package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/apierror"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/auth"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/config"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/provider"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/schema"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/usage"
)

// ChatHandler dispatches unified chat requests to provider adapters.
type ChatHandler struct {
	credentials *CredentialService
	recorder    *usage.Recorder
	upstream    config.UpstreamConfig

	// adapterFor is swapped in tests to inject fakes.
	adapterFor func(prefix string) (provider.Adapter, error)
}

// NewChatHandler constructs the handler with the registry-backed adapter
// factory.
func NewChatHandler(credentials *CredentialService, recorder *usage.Recorder, upstream config.UpstreamConfig) *ChatHandler {
	h := &ChatHandler{credentials: credentials, recorder: recorder, upstream: upstream}
	h.adapterFor = func(prefix string) (provider.Adapter, error) {
		return provider.New(prefix, provider.Options{
			RequestTimeout: upstream.RequestTimeout.Std(),
			StreamTimeout:  upstream.StreamTimeout.Std(),
		})
	}
	return h
}

// prepare parses and validates the request body and resolves the adapter
// and credential for its provider.
func (h *ChatHandler) prepare(c *gin.Context) (*schema.ChatRequest, provider.Adapter, string, string, *apierror.Error) {
	var req schema.ChatRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		return nil, nil, "", "", apierror.Validation("invalid json body")
	}
	if errValidate := req.Validate(); errValidate != nil {
		return nil, nil, "", "", apierror.Validation("%s", errValidate.Error())
	}

	prefix, _, _ := schema.SplitModel(req.Model)
	if !provider.Supported(prefix) {
		return nil, nil, "", "", apierror.Validation("unsupported provider %q", prefix)
	}
	adapter, errNew := h.adapterFor(prefix)
	if errNew != nil {
		return nil, nil, "", "", apierror.Validation("unsupported provider %q", prefix)
	}

	identity := auth.IdentityFromContext(c)
	apiKey, errResolve := h.credentials.ResolveKey(c.Request.Context(), identity.OrganizationID, prefix)
	if errResolve != nil {
		return nil, nil, "", "", errResolve
	}
	return &req, adapter, prefix, apiKey, nil
}

// ChatCompletions handles buffered completions.
func (h *ChatHandler) ChatCompletions(c *gin.Context) {
	req, adapter, prefix, apiKey, errPrepare := h.prepare(c)
	if errPrepare != nil {
		apierror.Respond(c, errPrepare)
		return
	}

	resp, errCall := adapter.ChatCompletion(c.Request.Context(), req, apiKey)
	if errCall != nil {
		h.record(c, req, prefix, schema.Usage{}, false, true)
		apierror.Respond(c, providerToAPIError(errCall))
		return
	}

	// Callers address models by prefixed name; the native name stays
	// internal.
	resp.Model = req.Model
	h.record(c, req, prefix, resp.Usage, false, false)
	c.JSON(http.StatusOK, resp)
}

// ChatCompletionsStream handles SSE completions. Once streaming starts the
// HTTP status is committed; mid-stream failures surface as an error frame
// followed by the done sentinel.
func (h *ChatHandler) ChatCompletionsStream(c *gin.Context) {
	req, adapter, prefix, apiKey, errPrepare := h.prepare(c)
	if errPrepare != nil {
		apierror.Respond(c, errPrepare)
		return
	}
	req.Stream = true

	chunks, errStart := adapter.ChatCompletionStream(c.Request.Context(), req, apiKey)
	if errStart != nil {
		h.record(c, req, prefix, schema.Usage{}, true, true)
		apierror.Respond(c, providerToAPIError(errStart))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	var streamUsage schema.Usage
	failed := false
	for chunk := range chunks {
		if chunk.Done {
			_, _ = c.Writer.WriteString("data: [DONE]\n\n")
			if flusher != nil {
				flusher.Flush()
			}
			break
		}
		if chunk.Error != nil {
			failed = true
		}
		if chunk.Usage != nil {
			streamUsage = *chunk.Usage
		}
		if chunk.Model != "" {
			chunk.Model = req.Model
		}
		payload, errMarshal := json.Marshal(chunk)
		if errMarshal != nil {
			log.WithError(errMarshal).Warn("chat: dropping unmarshalable stream chunk")
			continue
		}
		_, _ = c.Writer.WriteString("data: ")
		_, _ = c.Writer.Write(payload)
		_, _ = c.Writer.WriteString("\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	}

	h.record(c, req, prefix, streamUsage, true, failed)
}

// record hands the request outcome to the usage recorder off the hot
// path.
func (h *ChatHandler) record(c *gin.Context, req *schema.ChatRequest, prefix string, u schema.Usage, streamed, failed bool) {
	identity := auth.IdentityFromContext(c)
	organizationID := ""
	if identity != nil {
		organizationID = identity.OrganizationID
	}
	_, nativeModel, _ := schema.SplitModel(req.Model)
	record := usage.Record{
		OrganizationID: organizationID,
		Provider:       prefix,
		Model:          nativeModel,
		RequestID:      c.GetString(apierror.ContextKeyRequestID),
		Usage:          u,
		LatencyMS:      requestLatencyMS(c),
		Streamed:       streamed,
		Failed:         failed,
		RequestedAt:    time.Now().UTC(),
	}
	go h.recorder.Record(record)
}

// providerToAPIError maps adapter failures onto the gateway error surface.
func providerToAPIError(errCall *provider.Error) *apierror.Error {
	if errCall == nil {
		return nil
	}
	switch errCall.Type {
	case provider.ErrTypeTimeout:
		return apierror.Timeout(errCall.Provider)
	case provider.ErrTypeAPI:
		if errCall.Status == http.StatusTooManyRequests {
			out := apierror.RateLimited(errCall.RetryAfter)
			out.Code = errCall.Provider
			out.Message = errCall.Message
			return out
		}
		if errCall.Status == http.StatusUnauthorized || errCall.Status == http.StatusForbidden {
			return apierror.Configuration("%s rejected the stored credential", errCall.Provider)
		}
		return apierror.Provider(errCall.Provider, errCall.Message)
	default:
		return apierror.Provider(errCall.Provider, errCall.Message)
	}
}
