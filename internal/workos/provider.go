package workos

import (
	"github.com/jmartynas/workos-auth/internal/errs"
)

// MinCookiePasswordLen is the shortest cookie password accepted for sealing
// the OAuth state cookie.
const MinCookiePasswordLen = 32

// ProviderConfig carries the WorkOS credentials and the connection selector
// used when building authorization URLs. Exactly one selector is used, in
// the order Provider, Connection, Organization.
type ProviderConfig struct {
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	CookiePassword string `yaml:"cookie_password"`

	// Provider is an OAuth provider name such as GoogleOAuth, GitHubOAuth
	// or MicrosoftOAuth.
	Provider     string `yaml:"provider"`
	Connection   string `yaml:"connection"`
	Organization string `yaml:"organization"`
}

// Credentials are the secrets shared by every auth instance that talks to
// the same WorkOS environment.
type Credentials struct {
	ClientID       string
	ClientSecret   string
	CookiePassword string
	Connection     string
	Organization   string
}

// NewProviderConfig builds a validated ProviderConfig for the given OAuth
// provider so that one set of credentials can be reused across instances.
func NewProviderConfig(provider string, creds Credentials) (ProviderConfig, error) {
	cfg := ProviderConfig{
		ClientID:       creds.ClientID,
		ClientSecret:   creds.ClientSecret,
		CookiePassword: creds.CookiePassword,
		Provider:       provider,
		Connection:     creds.Connection,
		Organization:   creds.Organization,
	}
	if err := cfg.Validate(); err != nil {
		return ProviderConfig{}, err
	}
	return cfg, nil
}

func (c ProviderConfig) Validate() error {
	if c.ClientID == "" {
		return errs.ErrClientIDRequired
	}
	if c.ClientSecret == "" {
		return errs.ErrClientSecret
	}
	if len(c.CookiePassword) < MinCookiePasswordLen {
		return errs.ErrCookiePassword
	}
	return nil
}

// selector returns the query parameter name and value that tells WorkOS
// which connection to authenticate against.
func (c ProviderConfig) selector() (string, string, error) {
	switch {
	case c.Provider != "":
		return "provider", c.Provider, nil
	case c.Connection != "":
		return "connection", c.Connection, nil
	case c.Organization != "":
		return "organization", c.Organization, nil
	}
	return "", "", errs.ErrNoSelector
}
