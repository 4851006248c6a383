// README: Firebase ID-token auth middleware; a nil verifier disables auth.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"haul/internal/infra"
)

const (
	RoleRider  = infra.RoleRider
	RoleDriver = infra.RoleDriver

	ctxUID     = "auth.uid"
	ctxRole    = "auth.role"
	ctxEnabled = "auth.enabled"
)

// Auth verifies "Authorization: Bearer <id token>". Websocket clients that
// cannot set headers may pass the token as ?access_token=.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}

		raw := c.GetHeader("Authorization")
		var idToken string
		switch {
		case strings.HasPrefix(raw, "Bearer "):
			idToken = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
		case raw == "":
			idToken = c.Query("access_token")
		}
		if idToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		id, err := verifier.VerifyIDToken(c.Request.Context(), idToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxEnabled, true)
		c.Set(ctxUID, id.UID)
		c.Set(ctxRole, id.Role)
		c.Next()
	}
}

// AuthEnabled reports whether the request went through token verification.
func AuthEnabled(c *gin.Context) bool {
	return c.GetBool(ctxEnabled)
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}
