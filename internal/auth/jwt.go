package auth

import (
	"time"

	"campaign-dashboard/internal/permissions"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const Issuer = "campaign-dashboard"

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoSecret     = errors.New("JWT secret is not configured")
)

type Service struct {
	secret       []byte
	accessExpiry time.Duration
}

// Claims carries the principal of an access token. An empty Permissions
// list falls back to the role defaults.
type Claims struct {
	AccountID   string   `json:"account_id"`
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

func NewService(secret string, accessExpiry time.Duration) *Service {
	return &Service{
		secret:       []byte(secret),
		accessExpiry: accessExpiry,
	}
}

// Issue signs an access token for p
func (s *Service) Issue(p permissions.Principal) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()

	claims := Claims{
		AccountID:   p.AccountID,
		UserID:      p.UserID,
		Email:       p.Email,
		Role:        p.Role,
		Permissions: p.Permissions.Granted(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Subject:   p.UserID,
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign access token")
	}
	return token, nil
}

// Validate parses token and returns the principal it carries
func (s *Service) Validate(token string) (permissions.Principal, error) {
	if len(s.secret) == 0 {
		return permissions.Principal{}, ErrNoSecret
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return permissions.Principal{}, errors.Wrap(ErrInvalidToken, err.Error())
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return permissions.Principal{}, ErrInvalidToken
	}
	if claims.AccountID == "" {
		return permissions.Principal{}, errors.Wrap(ErrInvalidToken, "token has no account")
	}

	tree := permissions.DefaultTree(claims.Role)
	if len(claims.Permissions) > 0 {
		tree, err = permissions.FromGranted(claims.Permissions)
		if err != nil {
			return permissions.Principal{}, errors.Wrap(ErrInvalidToken, err.Error())
		}
	}

	return permissions.Principal{
		AccountID:   claims.AccountID,
		UserID:      claims.UserID,
		Email:       claims.Email,
		Role:        claims.Role,
		Permissions: tree,
	}, nil
}
