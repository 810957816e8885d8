// Package auth verifies the credentials presented by chat connections.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xiaot623/gogo/messenger/internal/domain"
)

// Claims defines the structure of the data stored inside the JWT.
type Claims struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name,omitempty"`
	Avatar string   `json:"avatar,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens for one issuer.
type TokenManager struct {
	secret []byte
	issuer string
}

// NewTokenManager creates a TokenManager.
func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer}
}

// Issue creates a signed JWT for a specific user.
func (m *TokenManager) Issue(userID string, roles []string, ttl time.Duration) (string, error) {
	return m.IssueProfile(domain.UserProfile{ID: userID}, roles, ttl)
}

// IssueProfile creates a signed JWT that also carries the user's display name and avatar.
func (m *TokenManager) IssueProfile(profile domain.UserProfile, roles []string, ttl time.Duration) (string, error) {
	if profile.ID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := &Claims{
		UserID: profile.ID,
		Name:   profile.Name,
		Avatar: profile.Avatar,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse validates signature, issuer and expiry, and returns the claims.
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}

// BearerToken strips an optional "Bearer " scheme from an Authorization value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
