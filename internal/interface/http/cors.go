package http

import "github.com/gin-gonic/gin"

// corsMiddleware injects CORS headers for the configured allowed
// origins so a front-end collaborator can call the API from a browser.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		headers := c.Writer.Header()
		if allowAll {
			headers.Set("Access-Control-Allow-Origin", "*")
		} else if _, ok := allowed[origin]; ok {
			headers.Set("Access-Control-Allow-Origin", origin)
			headers.Set("Vary", "Origin")
		}
		headers.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		headers.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
		headers.Set("Access-Control-Expose-Headers", "X-Request-Id")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
