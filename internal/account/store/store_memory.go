package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"threadhub/internal/account/models"
	"threadhub/pkg/platform/sentinel"
)

// MemoryStore is an in-memory account Store used by tests and local
// development.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]models.User
	oauth  map[string]models.OAuthAccount
	tokens map[uuid.UUID]models.ShortLivedToken
	now    func() time.Time
}

// NewMemory constructs an empty in-memory account store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:  make(map[uuid.UUID]models.User),
		oauth:  make(map[string]models.OAuthAccount),
		tokens: make(map[uuid.UUID]models.ShortLivedToken),
		now:    time.Now,
	}
}

func oauthKey(provider, providerUserID string) string {
	return provider + ":" + providerUserID
}

func (s *MemoryStore) CreateUser(_ context.Context, params models.UserCreate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, params.Email) {
			return models.User{}, sentinel.ErrConflict
		}
	}
	now := s.now().UTC()
	user := models.User{
		ID:           uuid.New(),
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		Name:         params.Name,
		AvatarURL:    params.AvatarURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, sentinel.ErrNotFound
}

func (s *MemoryStore) GetUserByID(_ context.Context, id uuid.UUID) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, sentinel.ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) VerifyUserEmail(_ context.Context, id uuid.UUID) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, sentinel.ErrNotFound
	}
	user.EmailVerified = true
	user.UpdatedAt = s.now().UTC()
	s.users[id] = user
	return user, nil
}

func (s *MemoryStore) UpdateUserPassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	user.PasswordHash = &passwordHash
	user.UpdatedAt = s.now().UTC()
	s.users[id] = user
	return nil
}

func (s *MemoryStore) UpdateUserProfile(_ context.Context, id uuid.UUID, update models.ProfileUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, sentinel.ErrNotFound
	}
	if update.Name != nil {
		user.Name = update.Name
	}
	if update.AvatarURL != nil {
		user.AvatarURL = update.AvatarURL
	}
	user.UpdatedAt = s.now().UTC()
	s.users[id] = user
	return user, nil
}

func (s *MemoryStore) UpsertOAuthAccount(_ context.Context, link models.OAuthLink) (models.OAuthAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := oauthKey(link.Provider, link.ProviderUserID)
	account, ok := s.oauth[key]
	if ok {
		account.AccessToken = link.AccessToken
		account.RefreshToken = link.RefreshToken
		account.ExpiresAt = link.ExpiresAt
	} else {
		account = models.OAuthAccount{
			ID:             uuid.New(),
			UserID:         link.UserID,
			Provider:       link.Provider,
			ProviderUserID: link.ProviderUserID,
			AccessToken:    link.AccessToken,
			RefreshToken:   link.RefreshToken,
			ExpiresAt:      link.ExpiresAt,
			CreatedAt:      s.now().UTC(),
		}
	}
	s.oauth[key] = account
	return account, nil
}

func (s *MemoryStore) GetOAuthAccount(_ context.Context, provider, providerUserID string) (models.OAuthAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.oauth[oauthKey(provider, providerUserID)]
	if !ok {
		return models.OAuthAccount{}, sentinel.ErrNotFound
	}
	return account, nil
}

func (s *MemoryStore) CreateToken(_ context.Context, userID uuid.UUID, purpose models.TokenPurpose, token string, ttl time.Duration) (models.ShortLivedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.tokens {
		if t.UserID == userID && t.Purpose == purpose {
			delete(s.tokens, id)
		}
	}
	now := s.now().UTC()
	out := models.ShortLivedToken{
		ID:        uuid.New(),
		UserID:    userID,
		Purpose:   purpose,
		Token:     token,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	s.tokens[out.ID] = out
	return out, nil
}

func (s *MemoryStore) LookupToken(_ context.Context, purpose models.TokenPurpose, token string) (models.ShortLivedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tokens {
		if t.Purpose == purpose && t.Token == token && t.ExpiresAt.After(s.now().UTC()) {
			return t, nil
		}
	}
	return models.ShortLivedToken{}, sentinel.ErrNotFound
}

func (s *MemoryStore) DeleteToken(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, id)
	return nil
}
