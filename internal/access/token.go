package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

type UserMetadata struct {
	IsAdmin bool `json:"is_admin,omitempty"`
}

// Claims is the session token payload.
type Claims struct {
	Email        string       `json:"email,omitempty"`
	Name         string       `json:"name,omitempty"`
	SessionID    string       `json:"sid,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 session token and returns its user.
func ParseToken(tokenString string, secret []byte) (*domain.User, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	sid := claims.SessionID
	if sid == "" {
		sid = claims.ID
	}
	return &domain.User{
		ID:        claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		SessionID: sid,
		IsAdmin:   claims.UserMetadata.IsAdmin,
	}, nil
}

// IssueToken signs a session token for user valid for ttl.
func IssueToken(user domain.User, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:        user.Email,
		Name:         user.Name,
		SessionID:    user.SessionID,
		UserMetadata: UserMetadata{IsAdmin: user.IsAdmin},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
