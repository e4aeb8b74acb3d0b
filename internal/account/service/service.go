// Package service holds the account business rules: signup, login, profile,
// email verification, password recovery, and identity-provider sync.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"threadhub/internal/account/models"
	"threadhub/internal/account/store"
	"threadhub/internal/email"
	"threadhub/internal/jwttoken"
	"threadhub/internal/oauth"
	"threadhub/internal/platform/metrics"
	derrors "threadhub/pkg/domain-errors"
	"threadhub/pkg/platform/sentinel"
)

const (
	verificationTokenTTL = 24 * time.Hour
	passwordResetTTL     = time.Hour
)

// OAuthExchanger trades provider authorization codes for verified identities.
type OAuthExchanger interface {
	AuthURL(provider string) (string, error)
	Exchange(ctx context.Context, provider, code string) (oauth.UserInfo, error)
}

// Service orchestrates account management.
type Service struct {
	accounts  store.Store
	jwt       *jwttoken.JWTService
	accessTTL time.Duration
	sender    email.Sender
	oauth     OAuthExchanger
	publicURL string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithOAuth(exchanger OAuthExchanger) Option {
	return func(s *Service) {
		s.oauth = exchanger
	}
}

// New constructs a Service.
func New(accounts store.Store, jwt *jwttoken.JWTService, accessTTL time.Duration, sender email.Sender, publicURL string, opts ...Option) *Service {
	s := &Service{
		accounts:  accounts,
		jwt:       jwt,
		accessTTL: accessTTL,
		sender:    sender,
		publicURL: publicURL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthResult pairs an issued access token with the authenticated user.
type AuthResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        models.User `json:"user"`
}

// Signup registers a password account, issues an access token, and sends a
// verification mail. Mail delivery is best effort.
func (s *Service) Signup(ctx context.Context, emailAddr, password string, name *string) (AuthResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	if err := validateEmail(emailAddr); err != nil {
		return AuthResult{}, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.accounts.CreateUser(ctx, models.UserCreate{
		Email:        emailAddr,
		PasswordHash: &hash,
		Name:         name,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return AuthResult{}, derrors.New(derrors.CodeAlreadyExists, "email already registered")
		}
		return AuthResult{}, derrors.Wrap(err, derrors.CodeInternal, "failed to create user")
	}
	s.incrementUsersCreated()

	s.sendVerification(ctx, user)

	return s.issueToken(user)
}

// Login authenticates a password account.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (AuthResult, error) {
	if len(password) > 72 {
		// bcrypt rejects longer inputs
		return AuthResult{}, derrors.New(derrors.CodeInvalidArgument, "password too long")
	}

	user, err := s.accounts.GetUserByEmail(ctx, normalizeEmail(emailAddr))
	if err != nil {
		return AuthResult{}, derrors.New(derrors.CodeUnauthenticated, "invalid email or password")
	}
	if user.PasswordHash == nil {
		// identity-provider account without a password
		return AuthResult{}, derrors.New(derrors.CodeUnauthenticated, "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return AuthResult{}, derrors.New(derrors.CodeUnauthenticated, "invalid email or password")
	}

	return s.issueToken(user)
}

// Me returns the authenticated user's account.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (models.User, error) {
	user, err := s.accounts.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.User{}, derrors.New(derrors.CodeNotFound, "user not found")
		}
		return models.User{}, derrors.Wrap(err, derrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// UpdateMe applies a partial profile update.
func (s *Service) UpdateMe(ctx context.Context, userID uuid.UUID, update models.ProfileUpdate) (models.User, error) {
	user, err := s.accounts.UpdateUserProfile(ctx, userID, update)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.User{}, derrors.New(derrors.CodeNotFound, "user not found")
		}
		return models.User{}, derrors.Wrap(err, derrors.CodeInternal, "failed to update profile")
	}
	return user, nil
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (models.User, error) {
	row, err := s.accounts.LookupToken(ctx, models.TokenPurposeEmailVerification, token)
	if err != nil {
		return models.User{}, derrors.New(derrors.CodeInvalidArgument, "invalid or expired verification token")
	}

	user, err := s.accounts.VerifyUserEmail(ctx, row.UserID)
	if err != nil {
		return models.User{}, derrors.Wrap(err, derrors.CodeInternal, "failed to verify email")
	}
	if err := s.accounts.DeleteToken(ctx, row.ID); err != nil {
		s.logger.Warn("failed to delete used verification token", "error", err)
	}
	return user, nil
}

// ResendVerification issues a fresh verification token for an unverified
// account.
func (s *Service) ResendVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := s.accounts.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return derrors.New(derrors.CodeNotFound, "user not found")
		}
		return derrors.Wrap(err, derrors.CodeInternal, "failed to load user")
	}
	if user.EmailVerified {
		return derrors.New(derrors.CodeInvalidArgument, "email already verified")
	}

	s.sendVerification(ctx, user)
	return nil
}

// ForgotPassword starts password recovery. It reports success whether or not
// the address matches an account, so callers cannot probe for registered
// emails.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	user, err := s.accounts.GetUserByEmail(ctx, normalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return derrors.Wrap(err, derrors.CodeInternal, "failed to load user")
	}

	token, err := generateToken()
	if err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "failed to generate reset token")
	}
	if _, err := s.accounts.CreateToken(ctx, user.ID, models.TokenPurposePasswordReset, token, passwordResetTTL); err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "failed to store reset token")
	}

	body := fmt.Sprintf("Reset your password: %s/reset-password?token=%s\n\nThis link expires in 1 hour.", s.publicURL, token)
	if err := s.sender.Send(ctx, user.Email, "Reset your password", body); err != nil {
		s.logger.Error("failed to send password reset email", "error", err)
	}
	return nil
}

// ResetPassword consumes a reset token and replaces the account password.
// The token is single use.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	row, err := s.accounts.LookupToken(ctx, models.TokenPurposePasswordReset, token)
	if err != nil {
		return derrors.New(derrors.CodeInvalidArgument, "invalid or expired reset token")
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdateUserPassword(ctx, row.UserID, hash); err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "failed to update password")
	}
	if err := s.accounts.DeleteToken(ctx, row.ID); err != nil {
		s.logger.Warn("failed to delete used reset token", "error", err)
	}
	return nil
}

// OAuthSync logs in or registers a user from a provider-verified identity.
// The (provider, provider user id) pair decides which account it is; a new
// link attaches to an existing account with the same email before a fresh
// account is created. Provider emails count as verified.
func (s *Service) OAuthSync(ctx context.Context, provider string, info oauth.UserInfo) (AuthResult, error) {
	if provider != oauth.ProviderGoogle && provider != oauth.ProviderGitHub {
		return AuthResult{}, derrors.New(derrors.CodeInvalidArgument, fmt.Sprintf("unsupported oauth provider: %s", provider))
	}
	if info.ProviderUserID == "" || info.Email == "" {
		return AuthResult{}, derrors.New(derrors.CodeInvalidArgument, "provider identity is incomplete")
	}

	var user models.User
	existing, err := s.accounts.GetOAuthAccount(ctx, provider, info.ProviderUserID)
	switch {
	case err == nil:
		user, err = s.accounts.GetUserByID(ctx, existing.UserID)
		if err != nil {
			return AuthResult{}, derrors.Wrap(err, derrors.CodeInternal, "oauth account linked to missing user")
		}
	case errors.Is(err, sentinel.ErrNotFound):
		user, err = s.linkOrCreateUser(ctx, info)
		if err != nil {
			return AuthResult{}, err
		}
	default:
		return AuthResult{}, derrors.Wrap(err, derrors.CodeInternal, "failed to look up oauth account")
	}

	var accessToken *string
	if info.AccessToken != "" {
		accessToken = &info.AccessToken
	}
	if _, err := s.accounts.UpsertOAuthAccount(ctx, models.OAuthLink{
		UserID:         user.ID,
		Provider:       provider,
		ProviderUserID: info.ProviderUserID,
		AccessToken:    accessToken,
	}); err != nil {
		return AuthResult{}, derrors.Wrap(err, derrors.CodeInternal, "failed to link oauth account")
	}

	return s.issueToken(user)
}

// OAuthAuthURL builds the provider redirect URL.
func (s *Service) OAuthAuthURL(provider string) (string, error) {
	if s.oauth == nil {
		return "", derrors.New(derrors.CodeInvalidArgument, "oauth not configured")
	}
	return s.oauth.AuthURL(provider)
}

// OAuthCallback completes the authorization-code flow and logs the user in.
func (s *Service) OAuthCallback(ctx context.Context, provider, code string) (AuthResult, error) {
	if s.oauth == nil {
		return AuthResult{}, derrors.New(derrors.CodeInvalidArgument, "oauth not configured")
	}
	info, err := s.oauth.Exchange(ctx, provider, code)
	if err != nil {
		return AuthResult{}, err
	}
	return s.OAuthSync(ctx, provider, info)
}

func (s *Service) linkOrCreateUser(ctx context.Context, info oauth.UserInfo) (models.User, error) {
	user, err := s.accounts.GetUserByEmail(ctx, normalizeEmail(info.Email))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return models.User{}, derrors.Wrap(err, derrors.CodeInternal, "failed to look up user")
	}

	name := info.Name
	if name == nil {
		derived := email.DeriveNameFromEmail(info.Email)
		name = &derived
	}
	user, err = s.accounts.CreateUser(ctx, models.UserCreate{
		Email:     normalizeEmail(info.Email),
		Name:      name,
		AvatarURL: info.AvatarURL,
	})
	if err != nil {
		return models.User{}, derrors.Wrap(err, derrors.CodeInternal, "failed to create user")
	}
	s.incrementUsersCreated()

	user, err = s.accounts.VerifyUserEmail(ctx, user.ID)
	if err != nil {
		return models.User{}, derrors.Wrap(err, derrors.CodeInternal, "failed to mark email verified")
	}
	return user, nil
}

func (s *Service) issueToken(user models.User) (AuthResult, error) {
	token, err := s.jwt.GenerateAccessToken(user.ID, s.accessTTL)
	if err != nil {
		return AuthResult{}, derrors.Wrap(err, derrors.CodeInternal, "failed to sign access token")
	}
	return AuthResult{AccessToken: token, TokenType: "bearer", User: user}, nil
}

func (s *Service) sendVerification(ctx context.Context, user models.User) {
	token, err := generateToken()
	if err != nil {
		s.logger.Error("failed to generate verification token", "error", err)
		return
	}
	if _, err := s.accounts.CreateToken(ctx, user.ID, models.TokenPurposeEmailVerification, token, verificationTokenTTL); err != nil {
		s.logger.Error("failed to store verification token", "error", err)
		return
	}

	body := fmt.Sprintf("Verify your email: %s/verify-email?token=%s\n\nThis link expires in 24 hours.", s.publicURL, token)
	if err := s.sender.Send(ctx, user.Email, "Verify your email", body); err != nil {
		s.logger.Error("failed to send verification email", "error", err, "user_id", user.ID)
	}
}

func (s *Service) incrementUsersCreated() {
	if s.metrics != nil {
		s.metrics.UsersCreated.Inc()
	}
}

func hashPassword(password string) (string, error) {
	if password == "" {
		return "", derrors.New(derrors.CodeInvalidArgument, "password must not be empty")
	}
	if len(password) > 72 {
		return "", derrors.New(derrors.CodeInvalidArgument, "password too long")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", derrors.Wrap(err, derrors.CodeInternal, "failed to hash password")
	}
	return string(hash), nil
}

func normalizeEmail(emailAddr string) string {
	return strings.ToLower(strings.TrimSpace(emailAddr))
}

func validateEmail(emailAddr string) error {
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return derrors.New(derrors.CodeInvalidArgument, "invalid email address")
	}
	return nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
