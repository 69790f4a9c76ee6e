package middleware

import (
	"errors"
	"net/http"
	"strings"

	"bulkops/internal/auth"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware accepts "Authorization: Bearer <access token>" and stores
// the caller's identity in the gin context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	verifier := auth.NewVerifier(secret)

	return func(c *gin.Context) {
		scheme, tokenString, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required. Use: Bearer <token>"})
			return
		}

		id, err := verifier.Verify(strings.TrimSpace(tokenString))
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			return
		case errors.Is(err, auth.ErrWrongType):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token type"})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		auth.SetIdentity(c, id)
		c.Next()
	}
}
