package http

import (
	"github.com/gin-gonic/gin"

	"github.com/ragserve/core/internal/domain/identity"
)

const authClaimsKey = "auth_claims"

func setClaims(c *gin.Context, claims identity.Claims) {
	c.Set(authClaimsKey, claims)
}

func getClaims(c *gin.Context) (identity.Claims, bool) {
	value, ok := c.Get(authClaimsKey)
	if !ok {
		return identity.Claims{}, false
	}
	claims, ok := value.(identity.Claims)
	return claims, ok
}
