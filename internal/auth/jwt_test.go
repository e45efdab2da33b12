package auth

import (
	"testing"
	"time"

	"campaign-dashboard/internal/permissions"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewService("test-secret", 15*time.Minute)

	token, err := svc.Issue(permissions.Principal{
		AccountID: "acc-1",
		UserID:    "user-1",
		Email:     "ann@example.com",
		Role:      permissions.RoleMember,
	})
	require.NoError(t, err)

	p, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", p.AccountID)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "ann@example.com", p.Email)
	assert.True(t, p.Can(permissions.ContactsWrite))
	assert.False(t, p.Can(permissions.TemplatesWrite))
}

func TestValidate_ExplicitPermissions(t *testing.T) {
	svc := NewService("test-secret", 15*time.Minute)

	token, err := svc.Issue(permissions.Principal{
		AccountID:   "acc-1",
		Role:        permissions.RoleMember,
		Permissions: permissions.Tree{}.With(permissions.WidgetWrite, true),
	})
	require.NoError(t, err)

	p, err := svc.Validate(token)
	require.NoError(t, err)
	assert.True(t, p.Can(permissions.WidgetWrite))
	assert.False(t, p.Can(permissions.ContactsRead))
}

func TestValidate_Rejects(t *testing.T) {
	svc := NewService("secret-1", 15*time.Minute)
	other := NewService("secret-2", 15*time.Minute)
	expired := NewService("secret-1", time.Millisecond)

	good, err := other.Issue(permissions.Principal{AccountID: "acc-1"})
	require.NoError(t, err)
	_, err = svc.Validate(good)
	assert.ErrorIs(t, err, ErrInvalidToken)

	old, err := expired.Issue(permissions.Principal{AccountID: "acc-1"})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = svc.Validate(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noAccount, err := svc.Issue(permissions.Principal{UserID: "u"})
	require.NoError(t, err)
	_, err = svc.Validate(noAccount)
	assert.ErrorIs(t, err, ErrInvalidToken)

	for _, malformed := range []string{"", "abc", "a.b.c"} {
		_, err = svc.Validate(malformed)
		assert.ErrorIs(t, err, ErrInvalidToken, malformed)
	}
}

func TestValidate_RejectsForeignIssuer(t *testing.T) {
	claims := Claims{
		AccountID: "acc-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = NewService("test-secret", time.Hour).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNoSecret(t *testing.T) {
	svc := NewService("", time.Hour)
	_, err := svc.Issue(permissions.Principal{AccountID: "acc-1"})
	assert.ErrorIs(t, err, ErrNoSecret)
	_, err = svc.Validate("x")
	assert.ErrorIs(t, err, ErrNoSecret)
}
