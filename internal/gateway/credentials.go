package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/apierror"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/auth"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/models"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/provider"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/vault"
)

// CredentialService owns provider credential storage and resolution. The
// vault handles key material; this layer handles rows and display fields.
type CredentialService struct {
	db        *gorm.DB
	vault     *vault.Vault
	validator *vault.Validator
}

// NewCredentialService constructs the service.
func NewCredentialService(db *gorm.DB, v *vault.Vault, validator *vault.Validator) *CredentialService {
	return &CredentialService{db: db, vault: v, validator: validator}
}

// ResolveKey decrypts the active credential for an organization and
// provider. A row that fails to decrypt is a server-side configuration
// problem, not a caller error.
func (s *CredentialService) ResolveKey(ctx context.Context, organizationID, providerName string) (string, *apierror.Error) {
	var row models.ProviderCredential
	errFind := s.db.WithContext(ctx).
		Where("organization_id = ? AND provider = ? AND is_active = ?", organizationID, providerName, true).
		Order("id DESC").
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", apierror.NotFound("no active %s credential configured", providerName)
		}
		log.WithError(errFind).Error("credentials: lookup failed")
		return "", apierror.Internal()
	}

	plaintext, errDecrypt := s.vault.Decrypt(row.Ciphertext)
	if errDecrypt != nil {
		log.WithError(errDecrypt).WithField("credential_id", row.ID).
			Error("credentials: stored ciphertext failed to decrypt")
		return "", apierror.Configuration("stored %s credential cannot be decrypted", providerName)
	}

	s.touchLastUsed(row.ID)
	return plaintext, nil
}

// touchLastUsed records credential activity without holding up the
// request.
func (s *CredentialService) touchLastUsed(credentialID uint64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		now := time.Now().UTC()
		if errUpdate := s.db.WithContext(ctx).
			Model(&models.ProviderCredential{}).
			Where("id = ?", credentialID).
			Update("last_used_at", now).Error; errUpdate != nil {
			log.WithError(errUpdate).Warn("credentials: failed to record key activity")
		}
	}()
}

// ActiveProviders lists the providers an organization holds an active
// credential for.
func (s *CredentialService) ActiveProviders(ctx context.Context, organizationID string) ([]string, error) {
	var providers []string
	errFind := s.db.WithContext(ctx).
		Model(&models.ProviderCredential{}).
		Distinct("provider").
		Where("organization_id = ? AND is_active = ?", organizationID, true).
		Order("provider ASC").
		Pluck("provider", &providers).Error
	if errFind != nil {
		return nil, errFind
	}
	return providers, nil
}

// credentialView is the safe representation returned to callers. Neither
// ciphertext nor plaintext ever leaves the service.
type credentialView struct {
	ID         uint64          `json:"id"`
	Provider   string          `json:"provider"`
	KeyPrefix  string          `json:"key_prefix"`
	KeyMasked  string          `json:"key_masked"`
	KeyInfo    json.RawMessage `json:"key_info,omitempty"`
	IsActive   bool            `json:"is_active"`
	LastUsedAt *time.Time      `json:"last_used_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func formatCredential(row *models.ProviderCredential) credentialView {
	view := credentialView{
		ID:         row.ID,
		Provider:   row.Provider,
		KeyPrefix:  row.Prefix,
		KeyMasked:  row.Masked,
		IsActive:   row.IsActive,
		LastUsedAt: row.LastUsedAt,
		CreatedAt:  row.CreatedAt,
	}
	if len(row.KeyInfo) > 0 {
		view.KeyInfo = json.RawMessage(row.KeyInfo)
	}
	return view
}

// createCredentialRequest captures the payload for storing a provider key.
type createCredentialRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	// SkipValidation stores the key without probing the provider, for
	// offline setup.
	SkipValidation bool `json:"skip_validation"`
}

// ListCredentials returns the caller's credentials with masked key
// material.
func (s *CredentialService) ListCredentials(c *gin.Context) {
	identity := auth.IdentityFromContext(c)
	var rows []models.ProviderCredential
	if errFind := s.db.WithContext(c.Request.Context()).
		Where("organization_id = ?", identity.OrganizationID).
		Order("provider ASC, id ASC").
		Find(&rows).Error; errFind != nil {
		log.WithError(errFind).Error("credentials: list failed")
		apierror.Respond(c, apierror.Internal())
		return
	}

	views := make([]credentialView, 0, len(rows))
	for i := range rows {
		views = append(views, formatCredential(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": views})
}

// CreateCredential validates, encrypts and stores a provider key. Any
// previously active key for the same provider is deactivated so exactly
// one credential serves each provider.
func (s *CredentialService) CreateCredential(c *gin.Context) {
	identity := auth.IdentityFromContext(c)

	var body createCredentialRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierror.Respond(c, apierror.Validation("invalid json body"))
		return
	}
	providerName := strings.ToLower(strings.TrimSpace(body.Provider))
	apiKey := strings.TrimSpace(body.APIKey)
	if providerName == "" || apiKey == "" {
		apierror.Respond(c, apierror.Validation("provider and api_key are required"))
		return
	}
	if !provider.Supported(providerName) {
		apierror.Respond(c, apierror.Validation("unsupported provider %q", providerName))
		return
	}

	var keyInfo datatypes.JSON
	if body.SkipValidation {
		if errFormat := vault.CheckFormat(providerName, apiKey); errFormat != nil {
			apierror.Respond(c, apierror.Validation("invalid %s key: %s", providerName, errFormat.Error()))
			return
		}
	} else {
		result := s.validator.Validate(c.Request.Context(), providerName, apiKey)
		if !result.IsValid {
			apierror.Respond(c, apierror.Validation("key validation failed: %s", result.ErrorMessage))
			return
		}
		if len(result.KeyInfo) > 0 {
			if raw, errMarshal := json.Marshal(result.KeyInfo); errMarshal == nil {
				keyInfo = raw
			}
		}
	}

	ciphertext, errEncrypt := s.vault.Encrypt(apiKey)
	if errEncrypt != nil {
		log.WithError(errEncrypt).Error("credentials: encrypt failed")
		apierror.Respond(c, apierror.Internal())
		return
	}

	row := models.ProviderCredential{
		OrganizationID: identity.OrganizationID,
		Provider:       providerName,
		Ciphertext:     ciphertext,
		Prefix:         vault.Prefix(apiKey, 0),
		Masked:         vault.Mask(apiKey, 0),
		KeyInfo:        keyInfo,
		IsActive:       true,
	}

	errTx := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errDeactivate := tx.Model(&models.ProviderCredential{}).
			Where("organization_id = ? AND provider = ? AND is_active = ?", identity.OrganizationID, providerName, true).
			Update("is_active", false).Error; errDeactivate != nil {
			return errDeactivate
		}
		return tx.Create(&row).Error
	})
	if errTx != nil {
		log.WithError(errTx).Error("credentials: create failed")
		apierror.Respond(c, apierror.Internal())
		return
	}

	c.JSON(http.StatusCreated, formatCredential(&row))
}

// DeleteCredential soft-deletes a credential. The row stays for audit;
// resolution ignores inactive rows.
func (s *CredentialService) DeleteCredential(c *gin.Context) {
	identity := auth.IdentityFromContext(c)

	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		apierror.Respond(c, apierror.Validation("invalid credential id"))
		return
	}

	res := s.db.WithContext(c.Request.Context()).
		Model(&models.ProviderCredential{}).
		Where("id = ? AND organization_id = ? AND is_active = ?", id, identity.OrganizationID, true).
		Update("is_active", false)
	if res.Error != nil {
		log.WithError(res.Error).Error("credentials: delete failed")
		apierror.Respond(c, apierror.Internal())
		return
	}
	if res.RowsAffected == 0 {
		apierror.Respond(c, apierror.NotFound("credential %d not found", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": id})
}
