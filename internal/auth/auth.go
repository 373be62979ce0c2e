// Package auth implements the broker's OAuth 2.0 authorization-code flow.
//
// The access token lives 30 minutes and is refreshed every 29; the refresh
// token lives 7 days, after which the interactive flow must be repeated.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/rickgao/quoteboard/internal/version"
)

// Errors
var (
	ErrNoCode         = errors.New("redirect URL has no authorization code")
	ErrNoToken        = errors.New("no token stored")
	ErrEmptyToken     = errors.New("token response has no access token")
	ErrTokenRejected  = errors.New("token request rejected")
	ErrRefreshExpired = errors.New("refresh token expired, run the auth command again")
)

// Config holds the registered application and the OAuth endpoints.
type Config struct {
	AppKey       string
	AppSecret    string
	CallbackURL  string
	AuthorizeURL string
	TokenURL     string
}

// Client performs OAuth token requests.
type Client struct {
	cfg    Config
	rest   *resty.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewClient creates an OAuth client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		rest: resty.New().
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", version.UserAgent()).
			SetTimeout(30 * time.Second),
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.rest.Close()
}

// AuthorizeURL returns the page the user signs in on.
func (c *Client) AuthorizeURL() string {
	q := url.Values{}
	q.Set("client_id", c.cfg.AppKey)
	q.Set("redirect_uri", c.cfg.CallbackURL)
	return c.cfg.AuthorizeURL + "?" + q.Encode()
}

// ParseRedirect extracts the authorization code from the URL the browser
// was redirected to. The code is returned URL-decoded.
func ParseRedirect(returned string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(returned))
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", ErrNoCode
	}
	return code, nil
}

// Exchange trades an authorization code for a token pair.
func (c *Client) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := c.postToken(ctx, map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": c.cfg.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	c.logger.Info("authorization code exchanged", "expires_in", tok.ExpiresIn)
	return tok, nil
}

// Refresh obtains a new access token. The returned token's RefreshIssuedAt is
// the request time; callers keeping the same refresh token should carry the
// original issue time forward.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	tok, err := c.postToken(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return tok, nil
}

func (c *Client) postToken(ctx context.Context, form map[string]string) (*Token, error) {
	var tok Token
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.AppKey, c.cfg.AppSecret).
		SetFormData(form).
		SetResult(&tok).
		Post(c.cfg.TokenURL)
	if err != nil {
		return nil, fmt.Errorf("post token request: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: status %d: %s", ErrTokenRejected, resp.StatusCode(), resp.String())
	}
	if tok.AccessToken == "" {
		return nil, ErrEmptyToken
	}

	now := c.now()
	tok.IssuedAt = now
	tok.RefreshIssuedAt = now
	return &tok, nil
}
