// Package plugin attaches a WorkOS auth instance to a framework App: it
// creates or extends the users and accounts collections and routes the
// instance's auth endpoints.
package plugin

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jmartynas/workos-auth/internal/account"
	"github.com/jmartynas/workos-auth/internal/auth"
	"github.com/jmartynas/workos-auth/internal/framework"
	"github.com/jmartynas/workos-auth/internal/handlers"
	"github.com/jmartynas/workos-auth/internal/metrics"
	"github.com/jmartynas/workos-auth/internal/workos"
)

const (
	DefaultSuccessRedirectPath = "/"
	DefaultErrorRedirectPath   = "/auth/error"
)

var (
	ErrNameRequired         = errors.New("plugin: name is required")
	ErrUsersSlugRequired    = errors.New("plugin: users collection slug is required")
	ErrAccountsSlugRequired = errors.New("plugin: accounts collection slug is required")
)

// Config describes one auth instance. Several instances may share a WorkOS
// provider config but each needs its own name.
type Config struct {
	Name                   string                `yaml:"name"`
	UseAdmin               bool                  `yaml:"use_admin"`
	AllowSignUp            bool                  `yaml:"allow_sign_up"`
	UsersCollectionSlug    string                `yaml:"users_collection"`
	AccountsCollectionSlug string                `yaml:"accounts_collection"`
	SuccessRedirectPath    string                `yaml:"success_redirect_path"`
	ErrorRedirectPath      string                `yaml:"error_redirect_path"`
	WorkOS                 workos.ProviderConfig `yaml:"workos"`

	OnSuccess auth.SuccessFunc `yaml:"-"`
	OnError   auth.ErrorFunc   `yaml:"-"`
}

func (c *Config) setDefaults() {
	if c.SuccessRedirectPath == "" {
		c.SuccessRedirectPath = DefaultSuccessRedirectPath
	}
	if c.ErrorRedirectPath == "" {
		c.ErrorRedirectPath = DefaultErrorRedirectPath
	}
}

func (c Config) Validate() error {
	var errList []error
	if c.Name == "" {
		errList = append(errList, ErrNameRequired)
	}
	if c.UsersCollectionSlug == "" {
		errList = append(errList, ErrUsersSlugRequired)
	}
	if c.AccountsCollectionSlug == "" {
		errList = append(errList, ErrAccountsSlugRequired)
	}
	if err := c.WorkOS.Validate(); err != nil {
		errList = append(errList, err)
	}
	return errors.Join(errList...)
}

type Option func(*Plugin)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Plugin) { p.metrics = m }
}

// WithClientOptions passes options to the WorkOS client.
func WithClientOptions(opts ...workos.Option) Option {
	return func(p *Plugin) { p.clientOpts = append(p.clientOpts, opts...) }
}

// WithProvider replaces the WorkOS client, mostly for tests.
func WithProvider(pr Provider) Option {
	return func(p *Plugin) { p.provider = pr }
}

// Provider is everything an auth instance needs from WorkOS.
type Provider interface {
	handlers.Provider
	auth.Exchanger
}

type Plugin struct {
	cfg        Config
	provider   Provider
	clientOpts []workos.Option
	metrics    *metrics.Metrics
}

// New validates cfg, applies defaults and builds the WorkOS client.
func New(cfg Config, opts ...Option) (*Plugin, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("auth instance %q: %w", cfg.Name, err)
	}
	cfg.setDefaults()

	p := &Plugin{cfg: cfg}
	for _, o := range opts {
		o(p)
	}
	if p.provider == nil {
		client, err := workos.NewClient(cfg.WorkOS, p.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("auth instance %q: %w", cfg.Name, err)
		}
		p.provider = client
	}
	return p, nil
}

func (p *Plugin) Config() Config { return p.cfg }

// Apply registers the instance on app. It must run before app.Mount.
func (p *Plugin) Apply(app *framework.App) error {
	cfg := p.cfg
	log := orStandard(app.Log).WithField("instance", cfg.Name)

	state, err := auth.NewStateStore(cfg.Name, cfg.WorkOS.CookiePassword, app.Production)
	if err != nil {
		return fmt.Errorf("auth instance %q: %w", cfg.Name, err)
	}

	users := app.Collection(cfg.UsersCollectionSlug)
	if users == nil {
		users = NewUsersCollection(cfg.UsersCollectionSlug, cfg.UseAdmin, log)
		app.AddCollection(users)
		log.WithField("collection", users.Slug).Debug("users collection created")
	} else {
		WithUsersCollection(users, log)
	}
	users.Hooks.AfterDelete = append(users.Hooks.AfterDelete, account.DeleteLinkedAccounts(app.Accounts, cfg.AccountsCollectionSlug))

	if accounts := app.Collection(cfg.AccountsCollectionSlug); accounts == nil {
		app.AddCollection(NewAccountsCollection(cfg.AccountsCollectionSlug, cfg.UsersCollectionSlug, log))
		log.WithField("collection", cfg.AccountsCollectionSlug).Debug("accounts collection created")
	} else {
		WithAccountCollection(accounts, cfg.UsersCollectionSlug, log)
	}

	h := &handlers.AuthHandler{
		Name:                cfg.Name,
		APIPrefix:           app.APIPrefix,
		UsersCollection:     cfg.UsersCollectionSlug,
		UseAdmin:            cfg.UseAdmin,
		SuccessRedirectPath: cfg.SuccessRedirectPath,
		ErrorRedirectPath:   cfg.ErrorRedirectPath,
		Provider:            p.provider,
		State:               state,
		Flow: &auth.Callback{
			Provider:           p.provider,
			Users:              app.Users,
			Accounts:           app.Accounts,
			UsersCollection:    cfg.UsersCollectionSlug,
			AccountsCollection: cfg.AccountsCollectionSlug,
			AllowSignUp:        cfg.AllowSignUp,
			OnSuccess:          cfg.OnSuccess,
			OnError:            cfg.OnError,
		},
		Metrics: p.metrics,
		Log:     log,
	}
	app.Endpoints = append(app.Endpoints, p.endpoints(h, log)...)

	if cfg.UseAdmin {
		app.AdminUser = cfg.UsersCollectionSlug
	}
	log.WithFields(logrus.Fields{
		"users":    cfg.UsersCollectionSlug,
		"accounts": cfg.AccountsCollectionSlug,
		"admin":    cfg.UseAdmin,
	}).Info("auth instance registered")
	return nil
}

func (p *Plugin) endpoints(h *handlers.AuthHandler, log logrus.FieldLogger) []framework.Endpoint {
	base := "/" + p.cfg.Name + "/auth/"
	return []framework.Endpoint{
		{Method: http.MethodGet, Path: base + "signin", Handler: h.SignIn},
		{Method: http.MethodGet, Path: base + "callback", Handler: h.Callback},
		{Method: http.MethodGet, Path: base + "signout", Handler: h.SignOut},
		{Method: http.MethodGet, Path: base + "session", Handler: h.Session},
		{Method: http.MethodPost, Path: base + "refresh", Handler: requireUser(log, h.Refresh)},
	}
}
