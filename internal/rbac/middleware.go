package rbac

import (
	"net/http"

	"callrouter/internal/auth"
	"callrouter/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireOrg enforces the multi-tenant invariant: every /v1 request acts
// inside exactly one org, taken from the access token.
func RequireOrg() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := auth.OrgID(c.Request.Context())
		if err != nil || orgID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "org_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// super_admin bypasses the check; support is hidden and must be listed
// explicitly. Chain after RequireOrg.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsSuperAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			logger.FromGin(c).Warn("role denied", "role", role, "path", c.FullPath(), "hidden", IsHiddenRole(role))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
