package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"leech-bot/internal/service"
)

const adminClaimsKey = "admin_claims"

// AdminAuthMiddleware valida el JWT de administración y que pertenezca al owner.
func AdminAuthMiddleware(tokens *service.AdminTokenService, ownerID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tokens.Configured() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin api disabled"})
			c.Abort()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		claims, err := tokens.Parse(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, service.ErrAdminTokenExpired) {
				msg = "token expired"
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
			c.Abort()
			return
		}
		if ownerID != 0 && claims.OwnerID != ownerID {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}

		c.Set(adminClaimsKey, claims)
		c.Next()
	}
}

// GetAdminClaims obtiene los claims de administración desde el contexto.
func GetAdminClaims(c *gin.Context) (service.AdminClaims, bool) {
	val, ok := c.Get(adminClaimsKey)
	if !ok {
		return service.AdminClaims{}, false
	}
	claims, ok := val.(service.AdminClaims)
	return claims, ok
}
