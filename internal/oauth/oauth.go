// Package oauth exchanges provider authorization codes for user identities.
// It supports the google and github providers.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	derrors "threadhub/pkg/domain-errors"
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// UserInfo is the provider-verified identity of an authenticated user.
type UserInfo struct {
	ProviderUserID string
	Email          string
	Name           *string
	AvatarURL      *string
	AccessToken    string
}

// Client drives the authorization-code flow against the configured
// providers.
type Client struct {
	httpClient         *http.Client
	googleClientID     string
	googleClientSecret string
	githubClientID     string
	githubClientSecret string
	publicURL          string
}

func New(publicURL, googleClientID, googleClientSecret, githubClientID, githubClientSecret string) *Client {
	return &Client{
		httpClient:         &http.Client{Timeout: 10 * time.Second},
		googleClientID:     googleClientID,
		googleClientSecret: googleClientSecret,
		githubClientID:     githubClientID,
		githubClientSecret: githubClientSecret,
		publicURL:          publicURL,
	}
}

func (c *Client) redirectURI(provider string) string {
	return fmt.Sprintf("%s/api/auth/oauth/%s/callback", c.publicURL, provider)
}

// AuthURL builds the provider authorization URL to send the user to.
func (c *Client) AuthURL(provider string) (string, error) {
	switch provider {
	case ProviderGoogle:
		if c.googleClientID == "" {
			return "", derrors.New(derrors.CodeInvalidArgument, "google oauth not configured")
		}
		q := url.Values{}
		q.Set("client_id", c.googleClientID)
		q.Set("redirect_uri", c.redirectURI(provider))
		q.Set("response_type", "code")
		q.Set("scope", "openid email profile")
		return "https://accounts.google.com/o/oauth2/v2/auth?" + q.Encode(), nil
	case ProviderGitHub:
		if c.githubClientID == "" {
			return "", derrors.New(derrors.CodeInvalidArgument, "github oauth not configured")
		}
		q := url.Values{}
		q.Set("client_id", c.githubClientID)
		q.Set("redirect_uri", c.redirectURI(provider))
		q.Set("scope", "user:email")
		return "https://github.com/login/oauth/authorize?" + q.Encode(), nil
	default:
		return "", derrors.New(derrors.CodeInvalidArgument, fmt.Sprintf("unsupported oauth provider: %s", provider))
	}
}

// Exchange trades an authorization code for the provider's view of the user.
func (c *Client) Exchange(ctx context.Context, provider, code string) (UserInfo, error) {
	switch provider {
	case ProviderGoogle:
		return c.exchangeGoogle(ctx, code)
	case ProviderGitHub:
		return c.exchangeGitHub(ctx, code)
	default:
		return UserInfo{}, derrors.New(derrors.CodeInvalidArgument, fmt.Sprintf("unsupported oauth provider: %s", provider))
	}
}

func (c *Client) exchangeGoogle(ctx context.Context, code string) (UserInfo, error) {
	if c.googleClientID == "" || c.googleClientSecret == "" {
		return UserInfo{}, derrors.New(derrors.CodeInvalidArgument, "google oauth not configured")
	}

	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", c.googleClientID)
	form.Set("client_secret", c.googleClientSecret)
	form.Set("redirect_uri", c.redirectURI(ProviderGoogle))
	form.Set("grant_type", "authorization_code")

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.postForm(ctx, "https://oauth2.googleapis.com/token", form, &tokenResp); err != nil {
		return UserInfo{}, derrors.Wrap(err, derrors.CodeInvalidArgument, "failed to exchange oauth code")
	}

	var info struct {
		ID      string  `json:"id"`
		Email   string  `json:"email"`
		Name    *string `json:"name"`
		Picture *string `json:"picture"`
	}
	if err := c.getJSON(ctx, "https://www.googleapis.com/oauth2/v2/userinfo", tokenResp.AccessToken, &info); err != nil {
		return UserInfo{}, derrors.Wrap(err, derrors.CodeInvalidArgument, "failed to fetch user info")
	}

	return UserInfo{
		ProviderUserID: info.ID,
		Email:          info.Email,
		Name:           info.Name,
		AvatarURL:      info.Picture,
		AccessToken:    tokenResp.AccessToken,
	}, nil
}

func (c *Client) exchangeGitHub(ctx context.Context, code string) (UserInfo, error) {
	if c.githubClientID == "" || c.githubClientSecret == "" {
		return UserInfo{}, derrors.New(derrors.CodeInvalidArgument, "github oauth not configured")
	}

	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", c.githubClientID)
	form.Set("client_secret", c.githubClientSecret)
	form.Set("redirect_uri", c.redirectURI(ProviderGitHub))

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.postForm(ctx, "https://github.com/login/oauth/access_token", form, &tokenResp); err != nil {
		return UserInfo{}, derrors.Wrap(err, derrors.CodeInvalidArgument, "failed to exchange oauth code")
	}

	var info struct {
		ID        int64   `json:"id"`
		Login     string  `json:"login"`
		Email     *string `json:"email"`
		Name      *string `json:"name"`
		AvatarURL *string `json:"avatar_url"`
	}
	if err := c.getJSON(ctx, "https://api.github.com/user", tokenResp.AccessToken, &info); err != nil {
		return UserInfo{}, derrors.Wrap(err, derrors.CodeInvalidArgument, "failed to fetch user info")
	}

	// Profile emails can be private; prefer the primary address from the
	// emails endpoint, then the profile email, then the noreply alias.
	email := ""
	var emails []struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}
	if err := c.getJSON(ctx, "https://api.github.com/user/emails", tokenResp.AccessToken, &emails); err == nil {
		for _, e := range emails {
			if e.Primary {
				email = e.Email
				break
			}
		}
	}
	if email == "" && info.Email != nil {
		email = *info.Email
	}
	if email == "" {
		email = fmt.Sprintf("%s@users.noreply.github.com", info.Login)
	}

	name := info.Name
	if name == nil && info.Login != "" {
		login := info.Login
		name = &login
	}

	return UserInfo{
		ProviderUserID: fmt.Sprintf("%d", info.ID),
		Email:          email,
		Name:           name,
		AvatarURL:      info.AvatarURL,
		AccessToken:    tokenResp.AccessToken,
	}, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
