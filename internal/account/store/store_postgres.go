package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"threadhub/internal/account/models"
	"threadhub/pkg/platform/sentinel"
)

// PostgresStore is the account repository backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgresStore on the given pool.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, password_hash, name, avatar_url, email_verified, created_at, updated_at`

func (s *PostgresStore) CreateUser(ctx context.Context, params models.UserCreate) (models.User, error) {
	query := fmt.Sprintf(`
		INSERT INTO users (id, email, password_hash, name, avatar_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING %s`, userColumns)

	row := s.db.QueryRowContext(ctx, query, uuid.New(), params.Email, params.PasswordHash, params.Name, params.AvatarURL)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, mapPQError(err, "create user")
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, id uuid.UUID) (models.User, error) {
	query := fmt.Sprintf(`
		UPDATE users SET email_verified = TRUE, updated_at = now()
		WHERE id = $1
		RETURNING %s`, userColumns)

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("verify user email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (models.User, error) {
	query := fmt.Sprintf(`
		UPDATE users SET
			name = COALESCE($2, name),
			avatar_url = COALESCE($3, avatar_url),
			updated_at = now()
		WHERE id = $1
		RETURNING %s`, userColumns)

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id, update.Name, update.AvatarURL))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("update user profile: %w", err)
	}
	return user, nil
}

const oauthColumns = `id, user_id, provider, provider_user_id, access_token, refresh_token, expires_at, created_at`

func (s *PostgresStore) UpsertOAuthAccount(ctx context.Context, link models.OAuthLink) (models.OAuthAccount, error) {
	query := fmt.Sprintf(`
		INSERT INTO oauth_accounts (id, user_id, provider, provider_user_id, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider, provider_user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at
		RETURNING %s`, oauthColumns)

	row := s.db.QueryRowContext(ctx, query,
		uuid.New(), link.UserID, link.Provider, link.ProviderUserID,
		link.AccessToken, link.RefreshToken, link.ExpiresAt)
	account, err := scanOAuthAccount(row)
	if err != nil {
		return models.OAuthAccount{}, fmt.Errorf("upsert oauth account: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) GetOAuthAccount(ctx context.Context, provider, providerUserID string) (models.OAuthAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM oauth_accounts WHERE provider = $1 AND provider_user_id = $2`, oauthColumns)
	account, err := scanOAuthAccount(s.db.QueryRowContext(ctx, query, provider, providerUserID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.OAuthAccount{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.OAuthAccount{}, fmt.Errorf("get oauth account: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) CreateToken(ctx context.Context, userID uuid.UUID, purpose models.TokenPurpose, token string, ttl time.Duration) (models.ShortLivedToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ShortLivedToken{}, fmt.Errorf("create token: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM auth_tokens WHERE user_id = $1 AND purpose = $2`,
		userID, purpose); err != nil {
		return models.ShortLivedToken{}, fmt.Errorf("create token: clear previous: %w", err)
	}

	var out models.ShortLivedToken
	err = tx.QueryRowContext(ctx, `
		INSERT INTO auth_tokens (id, user_id, purpose, token, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, purpose, token, expires_at, created_at`,
		uuid.New(), userID, purpose, token, time.Now().UTC().Add(ttl)).
		Scan(&out.ID, &out.UserID, &out.Purpose, &out.Token, &out.ExpiresAt, &out.CreatedAt)
	if err != nil {
		return models.ShortLivedToken{}, mapPQError(err, "create token")
	}

	if err := tx.Commit(); err != nil {
		return models.ShortLivedToken{}, fmt.Errorf("create token: commit: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) LookupToken(ctx context.Context, purpose models.TokenPurpose, token string) (models.ShortLivedToken, error) {
	var out models.ShortLivedToken
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, purpose, token, expires_at, created_at
		FROM auth_tokens
		WHERE purpose = $1 AND token = $2 AND expires_at > now()`,
		purpose, token).
		Scan(&out.ID, &out.UserID, &out.Purpose, &out.Token, &out.ExpiresAt, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ShortLivedToken{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.ShortLivedToken{}, fmt.Errorf("lookup token: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteToken(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.AvatarURL, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func scanOAuthAccount(row interface{ Scan(...any) error }) (models.OAuthAccount, error) {
	var a models.OAuthAccount
	err := row.Scan(&a.ID, &a.UserID, &a.Provider, &a.ProviderUserID, &a.AccessToken, &a.RefreshToken, &a.ExpiresAt, &a.CreatedAt)
	if err != nil {
		return models.OAuthAccount{}, err
	}
	return a, nil
}

func mapPQError(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}
