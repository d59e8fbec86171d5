package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPrefix marks personal access tokens issued by the gateway.
const TokenPrefix = "pat_"

// tokenRandomBytes is the entropy carried by a generated token.
const tokenRandomBytes = 24

var errEmptySecret = errors.New("jwt secret is empty")

// HashToken reduces a bearer token to the digest stored in the database.
// Plaintext tokens are never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// GenerateToken mints a new personal access token. The plaintext is shown
// to the caller exactly once; only its hash survives.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenRandomBytes)
	if _, errRead := rand.Read(buf); errRead != nil {
		return "", fmt.Errorf("generate token: %w", errRead)
	}
	return TokenPrefix + hex.EncodeToString(buf), nil
}

// Claims is the JWT payload for service-issued session tokens.
type Claims struct {
	OrganizationID string `json:"org_id"`
	Scopes         string `json:"scopes"`
	jwt.RegisteredClaims
}

// IssueJWT signs a session token for an organization.
func IssueJWT(secret, organizationID, scopes string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errEmptySecret
	}
	now := time.Now()
	claims := Claims{
		OrganizationID: organizationID,
		Scopes:         scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseJWT verifies a session token and returns its claims.
func ParseJWT(secret, token string) (*Claims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errEmptySecret
	}
	claims := &Claims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if errParse != nil {
		return nil, errParse
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
