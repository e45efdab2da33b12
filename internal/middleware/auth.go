package middleware

import (
	"net/http"
	"strings"

	"campaign-dashboard/internal/auth"
	"campaign-dashboard/internal/permissions"

	"github.com/gin-gonic/gin"
)

const PrincipalKey = "principal"

// Auth rejects requests without a valid bearer token. The dashboard signs
// the user out on any 401.
func Auth(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		principal, err := svc.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(PrincipalKey, principal)
		c.Request = c.Request.WithContext(permissions.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// Require rejects principals lacking path with 403
func Require(path permissions.Path) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		if !p.Can(path) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing permission " + path.String()})
			return
		}
		c.Next()
	}
}

func GetPrincipal(c *gin.Context) (permissions.Principal, bool) {
	if v, ok := c.Get(PrincipalKey); ok {
		if p, ok := v.(permissions.Principal); ok {
			return p, true
		}
	}
	return permissions.FromContext(c.Request.Context())
}

// AccountID returns the account of the authenticated caller
func AccountID(c *gin.Context) string {
	p, _ := GetPrincipal(c)
	return p.AccountID
}
