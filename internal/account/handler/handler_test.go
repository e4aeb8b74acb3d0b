package handler_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"threadhub/internal/account/handler"
	"threadhub/internal/account/models"
	"threadhub/internal/account/service"
	"threadhub/internal/account/store"
	"threadhub/internal/identity"
	"threadhub/internal/jwttoken"
	"threadhub/internal/platform/middleware"
	"threadhub/internal/ratelimit"
	"threadhub/pkg/testutil"
)

type sentMail struct {
	to, subject, body string
}

type captureSender struct {
	mails []sentMail
}

func (c *captureSender) Send(_ context.Context, to, subject, body string) error {
	c.mails = append(c.mails, sentMail{to: to, subject: subject, body: body})
	return nil
}

// tokenFromBody extracts the token query parameter from the link embedded in
// a verification or reset mail.
func (s *HandlerSuite) tokenFromBody(body string) string {
	start := strings.Index(body, "token=")
	s.Require().GreaterOrEqual(start, 0, "mail body carries no token: %s", body)
	raw := body[start+len("token="):]
	if end := strings.IndexAny(raw, " \n"); end >= 0 {
		raw = raw[:end]
	}
	token, err := url.QueryUnescape(raw)
	s.Require().NoError(err)
	return token
}

type HandlerSuite struct {
	suite.Suite
	router chi.Router
	sender *captureSender
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)

	accounts := store.NewMemory()
	jwtService := jwttoken.NewJWTService("test-signing-key", "threadhub", "threadhub")
	s.sender = &captureSender{}
	svc := service.New(accounts, jwtService, time.Hour, s.sender, "http://localhost:3000",
		service.WithLogger(logger))

	resolver := identity.NewResolver(jwtService, accounts)
	rateLimit := ratelimit.NewMiddleware(ratelimit.NoopLimiter{}, logger)

	s.router = chi.NewRouter()
	handler.New(svc, logger).Register(s.router, middleware.RequireAuth(resolver, logger), rateLimit.Limit)
}

func (s *HandlerSuite) signup(email, password string) service.AuthResult {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/signup",
		map[string]string{"email": email, "password": password})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[service.AuthResult](s.T(), rr)
}

func (s *HandlerSuite) TestSignupIssuesToken() {
	result := s.signup("ada@example.com", "correct horse battery")

	s.NotEmpty(result.AccessToken)
	s.Equal("bearer", result.TokenType)
	s.Equal("ada@example.com", result.User.Email)
	s.False(result.User.EmailVerified)
	s.Require().Len(s.sender.mails, 1)
	s.Equal("ada@example.com", s.sender.mails[0].to)
}

func (s *HandlerSuite) TestSignupDuplicateEmail() {
	s.signup("ada@example.com", "correct horse battery")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/signup",
		map[string]string{"email": "Ada@Example.com", "password": "another password"})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, "already_exists")
}

func (s *HandlerSuite) TestSignupMalformedBody() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/signup", nil)
	req.Body = http.NoBody
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, "invalid_argument")
}

func (s *HandlerSuite) TestLogin() {
	s.signup("ada@example.com", "correct horse battery")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"email": "ada@example.com", "password": "correct horse battery"})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	result := testutil.UnmarshalResponse[service.AuthResult](s.T(), rr)
	s.NotEmpty(result.AccessToken)
}

func (s *HandlerSuite) TestLoginWrongPassword() {
	s.signup("ada@example.com", "correct horse battery")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"email": "ada@example.com", "password": "wrong"})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	testutil.AssertErrorCode(s.T(), rr, "unauthenticated")
}

func (s *HandlerSuite) TestMeRequiresAuthentication() {
	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/auth/me", nil)
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *HandlerSuite) TestMeAndUpdateMe() {
	result := s.signup("ada@example.com", "correct horse battery")

	req := testutil.NewAuthedJSONRequest(s.T(), http.MethodGet, "/auth/me", result.AccessToken, nil)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	me := testutil.UnmarshalResponse[models.User](s.T(), rr)
	s.Equal(result.User.ID, me.ID)

	req = testutil.NewAuthedJSONRequest(s.T(), http.MethodPut, "/auth/me", result.AccessToken,
		map[string]string{"name": "Ada Lovelace"})
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	updated := testutil.UnmarshalResponse[models.User](s.T(), rr)
	s.Require().NotNil(updated.Name)
	s.Equal("Ada Lovelace", *updated.Name)
}

func (s *HandlerSuite) TestVerifyEmailFlow() {
	s.signup("ada@example.com", "correct horse battery")
	token := s.tokenFromBody(s.sender.mails[0].body)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/verify-email",
		map[string]string{"token": token})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	user := testutil.UnmarshalResponse[models.User](s.T(), rr)
	s.True(user.EmailVerified)

	// The token is single use.
	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/auth/verify-email", map[string]string{"token": token}))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, "invalid_argument")
}

func (s *HandlerSuite) TestForgotPasswordDoesNotRevealAccounts() {
	s.signup("ada@example.com", "correct horse battery")
	mailsBefore := len(s.sender.mails)

	known := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/auth/forgot-password", map[string]string{"email": "ada@example.com"}))
	unknown := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/auth/forgot-password", map[string]string{"email": "nobody@example.com"}))

	testutil.AssertStatus(s.T(), known, http.StatusOK)
	testutil.AssertStatus(s.T(), unknown, http.StatusOK)
	s.Equal(known.Body.String(), unknown.Body.String())
	s.Len(s.sender.mails, mailsBefore+1)
}

func (s *HandlerSuite) TestResetPasswordFlow() {
	s.signup("ada@example.com", "old password here")
	testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/auth/forgot-password", map[string]string{"email": "ada@example.com"}))
	token := s.tokenFromBody(s.sender.mails[len(s.sender.mails)-1].body)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/auth/reset-password", map[string]string{"token": token, "new_password": "brand new password"}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	// Old credential is dead, new one works.
	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/auth/login", map[string]string{"email": "ada@example.com", "password": "old password here"}))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/auth/login", map[string]string{"email": "ada@example.com", "password": "brand new password"}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestOAuthSync() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/auth/oauth/sync", map[string]string{
			"provider":         "github",
			"provider_user_id": "gh-42",
			"email":            "ada@example.com",
			"access_token":     "gh-token",
		}))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	result := testutil.UnmarshalResponse[service.AuthResult](s.T(), rr)
	s.NotEmpty(result.AccessToken)
	s.True(result.User.EmailVerified)
}

func (s *HandlerSuite) TestOAuthRedirectUnconfigured() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet,
		"/auth/oauth/github", nil))

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, "invalid_argument")
}

func (s *HandlerSuite) TestOAuthCallbackRequiresCode() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet,
		"/auth/oauth/github/callback", nil))

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, "invalid_argument")
}
