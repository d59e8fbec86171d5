package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/apierror"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/auth"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/provider"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/vault"
)

// modelView is one entry in the OpenAI-style model list.
type modelView struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// ModelsHandler serves model and provider discovery endpoints.
type ModelsHandler struct {
	credentials *CredentialService
}

// NewModelsHandler constructs the handler.
func NewModelsHandler(credentials *CredentialService) *ModelsHandler {
	return &ModelsHandler{credentials: credentials}
}

// ListModels returns the prefixed models the caller can actually reach,
// which means providers they hold an active credential for.
func (h *ModelsHandler) ListModels(c *gin.Context) {
	identity := auth.IdentityFromContext(c)

	providers, errList := h.credentials.ActiveProviders(c.Request.Context(), identity.OrganizationID)
	if errList != nil {
		log.WithError(errList).Error("models: provider lookup failed")
		apierror.Respond(c, apierror.Internal())
		return
	}

	data := make([]modelView, 0, 16)
	for _, prefix := range providers {
		adapter, errNew := provider.New(prefix, provider.Options{})
		if errNew != nil {
			// A credential for a provider with no adapter is stale data,
			// not a request failure.
			continue
		}
		for _, native := range adapter.SupportedModels() {
			data = append(data, modelView{
				ID:      prefix + "/" + native,
				Object:  "model",
				OwnedBy: prefix,
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// providerView describes one registered provider for discovery.
type providerView struct {
	Name               string   `json:"name"`
	Models             []string `json:"models"`
	SupportsStreaming  bool     `json:"supports_streaming"`
	SupportsValidation bool     `json:"supports_validation"`
}

// ListProviders returns the static provider registry. No credentials are
// consulted, so the endpoint serves unauthenticated discovery.
func ListProviders(c *gin.Context) {
	validatable := make(map[string]bool)
	for _, name := range vault.SupportedValidationProviders() {
		validatable[name] = true
	}

	data := make([]providerView, 0, 4)
	for _, prefix := range provider.Prefixes() {
		adapter, errNew := provider.New(prefix, provider.Options{})
		if errNew != nil {
			continue
		}
		models := adapter.SupportedModels()
		prefixed := make([]string, 0, len(models))
		for _, native := range models {
			prefixed = append(prefixed, prefix+"/"+native)
		}
		data = append(data, providerView{
			Name:               prefix,
			Models:             prefixed,
			SupportsStreaming:  true,
			SupportsValidation: validatable[prefix],
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
