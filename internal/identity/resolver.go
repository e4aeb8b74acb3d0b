// Package identity turns bearer tokens into verified owner identities. Both
// protocol adapters resolve credentials through the same Resolver so
// ownership decisions cannot drift between them.
package identity

import (
	"context"

	"github.com/google/uuid"

	"threadhub/internal/account/store"
	"threadhub/internal/jwttoken"
	derrors "threadhub/pkg/domain-errors"
)

// Resolver validates access tokens and maps them to existing accounts.
type Resolver struct {
	jwtService *jwttoken.JWTService
	accounts   store.Store
}

func NewResolver(jwtService *jwttoken.JWTService, accounts store.Store) *Resolver {
	return &Resolver{jwtService: jwtService, accounts: accounts}
}

// Resolve validates the token and returns the owning user id. Malformed or
// expired tokens fail with CodeUnauthenticated. A structurally valid token
// that carries no subject claim fails with CodeInvalidCredential; a valid
// token whose subject no longer matches an account fails with
// CodeUnauthenticated.
func (r *Resolver) Resolve(ctx context.Context, token string) (uuid.UUID, error) {
	claims, err := r.jwtService.ValidateToken(token)
	if err != nil {
		return uuid.Nil, err
	}

	if claims.Subject == "" {
		return uuid.Nil, derrors.New(derrors.CodeInvalidCredential, "token carries no subject")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, derrors.New(derrors.CodeInvalidCredential, "token subject is not a user id")
	}

	user, err := r.accounts.GetUserByID(ctx, userID)
	if err != nil {
		return uuid.Nil, derrors.New(derrors.CodeUnauthenticated, "unknown user")
	}
	return user.ID, nil
}

// ResolveOptional resolves a token when possible and reports whether an
// identity was attached. It never fails: anonymous and invalid credentials
// both come back as absent.
func (r *Resolver) ResolveOptional(ctx context.Context, token string) (uuid.UUID, bool) {
	if token == "" {
		return uuid.Nil, false
	}
	userID, err := r.Resolve(ctx, token)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}
