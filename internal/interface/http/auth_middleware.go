package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ragserve/core/internal/domain/identity"
)

// authMiddleware verifies the bearer token issued by the authentication
// collaborator and attaches its claims to the request context. Per
// spec.md §6 the core assumes an authenticated user_id and role on
// every protected request; it does not issue or refresh tokens itself.
func authMiddleware(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing authorization header", nil))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "invalid authorization header", nil))
			return
		}
		claims, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", errMessage(err), err))
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}
