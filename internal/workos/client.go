package workos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL = "https://api.workos.com"

	authorizePath    = "/user_management/authorize"
	authenticatePath = "/user_management/authenticate"
	userPath         = "/user_management/user"

	defaultTimeout  = 10 * time.Second
	defaultRetryMax = 2
	maxErrorBody    = 4096
)

// User is the WorkOS user profile returned by the user management API.
type User struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	FirstName         string `json:"first_name,omitempty"`
	LastName          string `json:"last_name,omitempty"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
	OrganizationID    string `json:"organization_id,omitempty"`
}

// AuthenticateResponse is the result of an authorization code or refresh
// token grant.
type AuthenticateResponse struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	ExpiresIn      int64  `json:"expires_in,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	User           User   `json:"user"`
}

// Organization returns the organization the user signed in through, if any.
func (r *AuthenticateResponse) Organization() string {
	if r.User.OrganizationID != "" {
		return r.User.OrganizationID
	}
	return r.OrganizationID
}

// Token converts the response into an oauth2 token. Expiry is left zero
// when WorkOS did not report a lifetime.
func (r *AuthenticateResponse) Token(now time.Time) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    "Bearer",
	}
	if r.ExpiresIn > 0 {
		tok.Expiry = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return tok
}

// APIError is returned when WorkOS answers with a non-2xx status.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Failed to %s: %s", e.Op, e.Body)
}

// Client talks to the WorkOS user management REST API.
type Client struct {
	cfg     ProviderConfig
	baseURL string
	http    *retryablehttp.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http.HTTPClient = hc }
}

func WithRetryMax(n int) Option {
	return func(c *Client) { c.http.RetryMax = n }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.http.Logger = newLeveledLogger(log) }
}

// NewClient validates cfg and returns a client with retries on transient
// failures.
func NewClient(cfg ProviderConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hc := retryablehttp.NewClient()
	hc.HTTPClient = &http.Client{Timeout: defaultTimeout}
	hc.RetryWaitMin = 200 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	hc.RetryMax = defaultRetryMax
	hc.Logger = nil
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		cfg:     cfg,
		baseURL: DefaultBaseURL,
		http:    hc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Config() ProviderConfig { return c.cfg }

// AuthorizationURL returns the WorkOS authorize URL the browser is sent to.
func (c *Client) AuthorizationURL(redirectURI, state string) (string, error) {
	name, value, err := c.cfg.selector()
	if err != nil {
		return "", err
	}
	oc := &oauth2.Config{
		ClientID:    c.cfg.ClientID,
		RedirectURL: redirectURI,
		Endpoint:    oauth2.Endpoint{AuthURL: c.baseURL + authorizePath},
	}
	return oc.AuthCodeURL(state, oauth2.SetAuthURLParam(name, value)), nil
}

// ExchangeCode trades an authorization code for tokens and the user profile.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*AuthenticateResponse, error) {
	body := map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"grant_type":    "authorization_code",
		"code":          code,
	}
	var out AuthenticateResponse
	if err := c.do(ctx, http.MethodPost, authenticatePath, c.cfg.ClientSecret, body, "exchange code for token", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshToken trades a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*AuthenticateResponse, error) {
	body := map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}
	var out AuthenticateResponse
	if err := c.do(ctx, http.MethodPost, authenticatePath, c.cfg.ClientSecret, body, "refresh access token", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUser fetches the profile of the user owning accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, userPath, accessToken, nil, "get user info", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in any, op string, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		payload = b
	}

	var body any
	if payload != nil {
		body = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
