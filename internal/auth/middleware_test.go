package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/db"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	return conn
}

func seedToken(t *testing.T, conn *gorm.DB, org, scopes string) string {
	t.Helper()
	token, errGen := GenerateToken()
	if errGen != nil {
		t.Fatalf("generate token: %v", errGen)
	}
	row := models.AccessToken{
		OrganizationID: org,
		Name:           "test token",
		TokenHash:      HashToken(token),
		Scopes:         scopes,
		IsActive:       true,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed token: %v", errCreate)
	}
	return token
}

func newAuthedRouter(t *testing.T, a *Authenticator, scope string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	group := engine.Group("/", a.Middleware())
	group.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"org": CallerID(c)})
	})
	if scope != "" {
		group.POST("/guarded", RequireScope(scope), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
	}
	return engine
}

func doRequest(engine *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestMiddleware_AcceptsSeededToken(t *testing.T) {
	conn := newTestDB(t)
	token := seedToken(t, conn, "org-1", "api:read api:write")
	engine := newAuthedRouter(t, NewAuthenticator(conn, ""), "")

	w := doRequest(engine, http.MethodGet, "/whoami", token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != `{"org":"org-1"}` {
		t.Fatalf("unexpected identity: %s", w.Body.String())
	}
}

func TestMiddleware_RejectsMissingAndBogusTokens(t *testing.T) {
	conn := newTestDB(t)
	engine := newAuthedRouter(t, NewAuthenticator(conn, ""), "")

	if w := doRequest(engine, http.MethodGet, "/whoami", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}
	if w := doRequest(engine, http.MethodGet, "/whoami", TokenPrefix+"doesnotexist"); w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token: expected 401, got %d", w.Code)
	}
}

func TestMiddleware_RejectsRevokedToken(t *testing.T) {
	conn := newTestDB(t)
	token := seedToken(t, conn, "org-1", "api:read")
	if errUpdate := conn.Model(&models.AccessToken{}).
		Where("token_hash = ?", HashToken(token)).
		Update("is_active", false).Error; errUpdate != nil {
		t.Fatalf("revoke: %v", errUpdate)
	}
	engine := newAuthedRouter(t, NewAuthenticator(conn, ""), "")

	if w := doRequest(engine, http.MethodGet, "/whoami", token); w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: expected 401, got %d", w.Code)
	}
}

func TestRequireScope(t *testing.T) {
	conn := newTestDB(t)
	readOnly := seedToken(t, conn, "org-1", "api:read")
	writer := seedToken(t, conn, "org-2", "api:read api:write")
	wildcard := seedToken(t, conn, "org-3", "*")
	engine := newAuthedRouter(t, NewAuthenticator(conn, ""), "api:write")

	if w := doRequest(engine, http.MethodPost, "/guarded", readOnly); w.Code != http.StatusForbidden {
		t.Fatalf("read-only token: expected 403, got %d", w.Code)
	}
	if w := doRequest(engine, http.MethodPost, "/guarded", writer); w.Code != http.StatusNoContent {
		t.Fatalf("writer token: expected 204, got %d", w.Code)
	}
	if w := doRequest(engine, http.MethodPost, "/guarded", wildcard); w.Code != http.StatusNoContent {
		t.Fatalf("wildcard token: expected 204, got %d", w.Code)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	conn := newTestDB(t)
	a := NewAuthenticator(conn, "unit-test-secret")

	token, errIssue := IssueJWT("unit-test-secret", "org-9", "api:read", time.Minute)
	if errIssue != nil {
		t.Fatalf("issue: %v", errIssue)
	}
	identity, errResolve := a.Resolve(context.Background(), token)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if identity.OrganizationID != "org-9" {
		t.Fatalf("unexpected org: %q", identity.OrganizationID)
	}
	if !identity.HasScope("api:read") || identity.HasScope("api:write") {
		t.Fatalf("unexpected scopes: %v", identity.Scopes)
	}

	if _, errWrong := a.Resolve(context.Background(), token+"tampered"); errWrong == nil {
		t.Fatal("tampered jwt must be rejected")
	}
	expired, _ := IssueJWT("unit-test-secret", "org-9", "api:read", -time.Minute)
	if _, errExpired := a.Resolve(context.Background(), expired); errExpired == nil {
		t.Fatal("expired jwt must be rejected")
	}
}
