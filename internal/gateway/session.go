package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/apierror"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/auth"
)

// defaultSessionTTL applies when jwt.expiry is not configured.
const defaultSessionTTL = time.Hour

// IssueSessionToken exchanges an authenticated PAT for a short-lived JWT
// carrying the same organization and scopes. Clients that must not hold
// the long-lived PAT, like browser sessions, use the JWT instead.
func (s *Server) IssueSessionToken(c *gin.Context) {
	if strings.TrimSpace(s.cfg.JWT.Secret) == "" {
		apierror.Respond(c, apierror.Configuration("jwt signing is not configured"))
		return
	}
	identity := auth.IdentityFromContext(c)
	if identity == nil {
		apierror.Respond(c, apierror.Authentication("authentication required"))
		return
	}

	ttl := s.cfg.JWT.Expiry.Std()
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	token, errIssue := auth.IssueJWT(s.cfg.JWT.Secret, identity.OrganizationID, strings.Join(identity.Scopes, " "), ttl)
	if errIssue != nil {
		log.WithError(errIssue).Error("session: jwt signing failed")
		apierror.Respond(c, apierror.Internal())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(ttl.Seconds()),
	})
}
