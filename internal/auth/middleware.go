package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/apierror"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/models"
)

// contextKeyIdentity is the gin context key holding the authenticated
// Identity.
const contextKeyIdentity = "authIdentity"

// Identity describes the authenticated caller for downstream handlers.
type Identity struct {
	OrganizationID string
	TokenID        uint64
	Scopes         []string
}

// HasScope reports whether the identity carries a scope. A wildcard "*"
// grants everything.
func (id *Identity) HasScope(scope string) bool {
	if id == nil {
		return false
	}
	for _, s := range id.Scopes {
		if s == "*" || strings.EqualFold(s, scope) {
			return true
		}
	}
	return false
}

// Authenticator verifies bearer credentials against the access token
// table and, when configured, JWT session tokens.
type Authenticator struct {
	db        *gorm.DB
	jwtSecret string
}

// NewAuthenticator constructs an authenticator on the application
// database.
func NewAuthenticator(db *gorm.DB, jwtSecret string) *Authenticator {
	return &Authenticator{db: db, jwtSecret: jwtSecret}
}

// Middleware rejects requests without a valid bearer token and stores the
// resolved Identity on the context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			apierror.Respond(c, apierror.Authentication("missing bearer token"))
			return
		}

		identity, errAuth := a.Resolve(c.Request.Context(), token)
		if errAuth != nil {
			apierror.Respond(c, apierror.Authentication("invalid or revoked token"))
			return
		}
		c.Set(contextKeyIdentity, identity)
		c.Next()
	}
}

// Resolve verifies a token and returns the caller identity. Personal
// access tokens are matched by hash; anything else is tried as a JWT.
func (a *Authenticator) Resolve(ctx context.Context, token string) (*Identity, error) {
	if a == nil {
		return nil, errors.New("nil authenticator")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("empty token")
	}

	if strings.HasPrefix(token, TokenPrefix) {
		return a.resolvePAT(ctx, token)
	}
	if a.jwtSecret != "" {
		claims, errParse := ParseJWT(a.jwtSecret, token)
		if errParse != nil {
			return nil, errParse
		}
		if strings.TrimSpace(claims.OrganizationID) == "" {
			return nil, errors.New("token has no organization")
		}
		return &Identity{
			OrganizationID: claims.OrganizationID,
			Scopes:         splitScopes(claims.Scopes),
		}, nil
	}
	return nil, errors.New("unrecognized token")
}

func (a *Authenticator) resolvePAT(ctx context.Context, token string) (*Identity, error) {
	if a.db == nil {
		return nil, errors.New("nil db")
	}
	var row models.AccessToken
	errFind := a.db.WithContext(ctx).
		Where("token_hash = ? AND is_active = ?", HashToken(token), true).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, errors.New("token not found")
		}
		return nil, errFind
	}

	a.touchLastUsed(row.ID)

	return &Identity{
		OrganizationID: row.OrganizationID,
		TokenID:        row.ID,
		Scopes:         splitScopes(row.Scopes),
	}, nil
}

// touchLastUsed records token activity without holding up the request.
func (a *Authenticator) touchLastUsed(tokenID uint64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		now := time.Now().UTC()
		if errUpdate := a.db.WithContext(ctx).
			Model(&models.AccessToken{}).
			Where("id = ?", tokenID).
			Update("last_used_at", now).Error; errUpdate != nil {
			log.WithError(errUpdate).Warn("auth: failed to record token activity")
		}
	}()
}

// RequireScope gates a route group on a token scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := IdentityFromContext(c)
		if identity == nil {
			apierror.Respond(c, apierror.Authentication("missing bearer token"))
			return
		}
		if !identity.HasScope(scope) {
			apierror.Respond(c, apierror.Authorization("token lacks scope "+scope))
			return
		}
		c.Next()
	}
}

// IdentityFromContext returns the authenticated identity, or nil for
// anonymous requests.
func IdentityFromContext(c *gin.Context) *Identity {
	v, exists := c.Get(contextKeyIdentity)
	if !exists {
		return nil
	}
	identity, ok := v.(*Identity)
	if !ok {
		return nil
	}
	return identity
}

// CallerID returns the organization id for rate limiting and cache keys,
// or "" when unauthenticated.
func CallerID(c *gin.Context) string {
	if identity := IdentityFromContext(c); identity != nil {
		return identity.OrganizationID
	}
	return ""
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func splitScopes(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
