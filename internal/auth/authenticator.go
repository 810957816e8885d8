package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/messenger/internal/domain"
	"github.com/xiaot623/gogo/messenger/internal/protocol"
)

// Identity is the authenticated owner of a connection.
// Name and Avatar are empty when the token carries no profile.
type Identity struct {
	UserID string
	Name   string
	Avatar string
	Roles  []string
}

// Profile returns the public identity carried by the credential.
func (i Identity) Profile() domain.UserProfile {
	return domain.UserProfile{ID: i.UserID, Name: i.Name, Avatar: i.Avatar}
}

// Authenticator gates connection admission: token verification, then policy.
type Authenticator struct {
	tokens *TokenManager
	policy *Policy
}

// NewAuthenticator creates an Authenticator. A nil policy admits every valid token.
func NewAuthenticator(tokens *TokenManager, policy *Policy) *Authenticator {
	return &Authenticator{tokens: tokens, policy: policy}
}

// Authenticate resolves a credential to an Identity.
// Every failure wraps domain.ErrAuth.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (Identity, error) {
	token := BearerToken(credential)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: credential is required", domain.ErrAuth)
	}

	claims, err := a.tokens.Parse(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: invalid or expired token", domain.ErrAuth)
	}
	if err := protocol.ValidateUserID(claims.UserID); err != nil {
		return Identity{}, fmt.Errorf("%w: malformed user id", domain.ErrAuth)
	}

	id := Identity{UserID: claims.UserID, Name: claims.Name, Avatar: claims.Avatar, Roles: claims.Roles}
	if a.policy == nil {
		return id, nil
	}

	decision, err := a.policy.Evaluate(ctx, id)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	if !strings.EqualFold(decision, DecisionAllow) {
		return Identity{}, fmt.Errorf("%w: admission denied", domain.ErrAuth)
	}
	return id, nil
}
