// Package models defines account entities: users, identity-provider links,
// and the short-lived tokens used for email verification and password reset.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the account that exclusively controls visibility and mutation
// rights over its threads. PasswordHash is nil for identity-provider-linked
// accounts; the store guarantees such users carry at least one OAuthAccount.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  *string   `json:"-"`
	Name          *string   `json:"name"`
	AvatarURL     *string   `json:"avatar_url"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OAuthAccount links a user to an identity provider. The
// (provider, provider user id) pair is globally unique; re-linking the same
// pair updates stored tokens in place.
type OAuthAccount struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	Provider       string     `json:"provider"`
	ProviderUserID string     `json:"provider_user_id"`
	AccessToken    *string    `json:"-"`
	RefreshToken   *string    `json:"-"`
	ExpiresAt      *time.Time `json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TokenPurpose distinguishes the two short-lived token kinds.
type TokenPurpose string

const (
	TokenPurposeEmailVerification TokenPurpose = "email_verification"
	TokenPurposePasswordReset     TokenPurpose = "password_reset"
)

// ShortLivedToken authorizes a single email-verification or password-reset
// action without a full credential. It is valid only while the current time
// is before ExpiresAt; expired tokens are never returned by lookup.
type ShortLivedToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Purpose   TokenPurpose
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserCreate describes a new account. PasswordHash is optional for
// identity-provider signups.
type UserCreate struct {
	Email        string
	PasswordHash *string
	Name         *string
	AvatarURL    *string
}

// OAuthLink describes an identity-provider link to upsert.
type OAuthLink struct {
	UserID         uuid.UUID
	Provider       string
	ProviderUserID string
	AccessToken    *string
	RefreshToken   *string
	ExpiresAt      *time.Time
}

// ProfileUpdate carries the mutable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}
