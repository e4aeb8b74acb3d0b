// Package store persists accounts, identity-provider links, and short-lived
// tokens.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"threadhub/internal/account/models"
)

// Store is the account repository. Absent rows surface as
// sentinel.ErrNotFound; unique-constraint violations as sentinel.ErrConflict.
type Store interface {
	// CreateUser inserts a new account. Returns sentinel.ErrConflict when
	// the email is already taken.
	CreateUser(ctx context.Context, params models.UserCreate) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
	VerifyUserEmail(ctx context.Context, id uuid.UUID) (models.User, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateUserProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (models.User, error)

	// UpsertOAuthAccount creates or refreshes the link keyed by
	// (provider, provider user id).
	UpsertOAuthAccount(ctx context.Context, link models.OAuthLink) (models.OAuthAccount, error)
	GetOAuthAccount(ctx context.Context, provider, providerUserID string) (models.OAuthAccount, error)

	// CreateToken stores a short-lived token, replacing any existing token
	// of the same purpose for the user.
	CreateToken(ctx context.Context, userID uuid.UUID, purpose models.TokenPurpose, token string, ttl time.Duration) (models.ShortLivedToken, error)
	// LookupToken returns the unexpired token row matching the value and
	// purpose; expired or unknown tokens yield sentinel.ErrNotFound.
	LookupToken(ctx context.Context, purpose models.TokenPurpose, token string) (models.ShortLivedToken, error)
	// DeleteToken removes a token by id. Deleting an absent token is not an
	// error.
	DeleteToken(ctx context.Context, id uuid.UUID) error
}
