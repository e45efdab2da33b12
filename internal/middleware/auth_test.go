package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campaign-dashboard/internal/auth"
	"campaign-dashboard/internal/permissions"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(svc *auth.Service) *gin.Engine {
	r := gin.New()
	r.Use(Auth(svc))
	r.GET("/contacts", Require(permissions.ContactsRead), func(c *gin.Context) {
		p, ok := permissions.FromContext(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"account": p.AccountID, "from_gin": AccountID(c)})
	})
	r.PUT("/channels/x", Require(permissions.ChannelsWrite), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func issue(t *testing.T, svc *auth.Service, role string) string {
	t.Helper()
	token, err := svc.Issue(permissions.Principal{AccountID: "acc-1", UserID: "u-1", Role: role})
	require.NoError(t, err)
	return token
}

func TestAuth(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)
	r := newRouter(svc)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Token abc", http.StatusUnauthorized, "invalid authorization header format"},
		{"only bearer", "Bearer", http.StatusUnauthorized, "invalid authorization header format"},
		{"bad token", "Bearer abc", http.StatusUnauthorized, "invalid or expired token"},
		{"valid", "Bearer " + issue(t, svc, permissions.RoleMember), http.StatusOK, `"account":"acc-1"`},
		{"lower-case scheme", "bearer " + issue(t, svc, permissions.RoleMember), http.StatusOK, `"from_gin":"acc-1"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestRequire(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)
	r := newRouter(svc)

	for role, want := range map[string]int{
		permissions.RoleAdmin:  http.StatusNoContent,
		permissions.RoleMember: http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPut, "/channels/x", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, svc, role))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}
}

func TestRequire_WithoutAuth(t *testing.T) {
	r := gin.New()
	r.GET("/", Require(permissions.ContactsRead), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
