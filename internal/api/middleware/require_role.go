package middleware

import (
	"net/http"
	"strings"

	"github.com/GradientHair/GradientHair/internal/utils"
	"github.com/gin-gonic/gin"
)

// RequireRole admits requests whose JWT role, set by JWTAuth, is one of allowed.
// Roles compare case-insensitively.
func RequireRole(allowed ...string) gin.HandlerFunc {
	allow := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			allow[a] = true
		}
	}

	return func(c *gin.Context) {
		role := strings.ToLower(strings.TrimSpace(c.GetString("role")))
		if !allow[role] {
			abort(c, http.StatusForbidden, utils.CodeForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

// RequireAdmin guards the operator surface (session listing and the like).
func RequireAdmin() gin.HandlerFunc { return RequireRole("admin") }
