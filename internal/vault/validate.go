package vault

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ValidationResult reports the outcome of a credential validation attempt.
type ValidationResult struct {
	IsValid      bool           `json:"is_valid"`
	ProviderName string         `json:"provider_name"`
	ErrorMessage string         `json:"error_message,omitempty"`
	KeyInfo      map[string]any `json:"key_info,omitempty"`
}

// providerCheck describes how to validate one provider's keys.
type providerCheck struct {
	format   *regexp.Regexp
	probeURL string
	headers  func(key string) map[string]string
}

// Key format shapes are checked before any network call so obviously
// malformed keys are rejected for free.
var providerChecks = map[string]providerCheck{
	"openai": {
		format:   regexp.MustCompile(`^sk-[A-Za-z0-9_-]{20,}$`),
		probeURL: "https://api.openai.com/v1/models",
		headers: func(key string) map[string]string {
			return map[string]string{"Authorization": "Bearer " + key}
		},
	},
	"anthropic": {
		format:   regexp.MustCompile(`^sk-ant-[A-Za-z0-9_-]{20,}$`),
		probeURL: "https://api.anthropic.com/v1/models",
		headers: func(key string) map[string]string {
			return map[string]string{"x-api-key": key, "anthropic-version": "2023-06-01"}
		},
	},
}

// Validator checks credential format and liveness against the provider.
type Validator struct {
	client   *http.Client
	probeURL map[string]string
}

// NewValidator constructs a Validator. A nil client gets a short-timeout
// default so validation cannot hang credential creation.
func NewValidator(client *http.Client) *Validator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Validator{client: client, probeURL: map[string]string{}}
}

// OverrideProbeURL redirects a provider's liveness probe, used by tests and
// self-hosted compatible endpoints.
func (v *Validator) OverrideProbeURL(provider, url string) {
	if v == nil {
		return
	}
	v.probeURL[strings.ToLower(strings.TrimSpace(provider))] = url
}

// CheckFormat validates the key shape for a provider without any network IO.
func CheckFormat(provider, key string) error {
	check, ok := providerChecks[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return fmt.Errorf("unsupported provider %q", provider)
	}
	if !check.format.MatchString(strings.TrimSpace(key)) {
		return fmt.Errorf("key does not match the expected %s format", provider)
	}
	return nil
}

// Validate runs the format check and then probes the provider's models
// endpoint to confirm the key is live.
func (v *Validator) Validate(ctx context.Context, provider, key string) ValidationResult {
	provider = strings.ToLower(strings.TrimSpace(provider))
	result := ValidationResult{ProviderName: provider}

	if errFormat := CheckFormat(provider, key); errFormat != nil {
		result.ErrorMessage = errFormat.Error()
		return result
	}

	check := providerChecks[provider]
	url := check.probeURL
	if override, ok := v.probeURL[provider]; ok && override != "" {
		url = override
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if errReq != nil {
		result.ErrorMessage = fmt.Sprintf("build validation request: %v", errReq)
		return result
	}
	for name, value := range check.headers(strings.TrimSpace(key)) {
		req.Header.Set(name, value)
	}

	resp, errDo := v.client.Do(req)
	if errDo != nil {
		result.ErrorMessage = fmt.Sprintf("provider unreachable: %v", errDo)
		return result
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.IsValid = true
		result.KeyInfo = map[string]any{"validated_at": time.Now().UTC().Format(time.RFC3339)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		result.ErrorMessage = "provider rejected the key"
	default:
		result.ErrorMessage = fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return result
}

// SupportedValidationProviders lists providers with a registered key check.
func SupportedValidationProviders() []string {
	out := make([]string, 0, len(providerChecks))
	for name := range providerChecks {
		out = append(out, name)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
