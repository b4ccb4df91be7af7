package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/jmartynas/workos-auth/internal/plugin"
	"github.com/jmartynas/workos-auth/internal/workos"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "WORKOS_AUTH"

const (
	StorageMemory = "memory"
	StorageMySQL  = "mysql"

	minSecretLength = 32
)

var (
	ErrMySQLRequired     = errors.New("config: mysql storage selected but no DSN or host configured")
	ErrInvalidStorage    = errors.New("config: storage must be memory or mysql")
	ErrInvalidLogLevel   = errors.New("config: invalid log level")
	ErrSecretLength      = errors.New("config: framework secret must be at least 32 characters")
	ErrNoInstances       = errors.New("config: at least one auth instance is required")
	ErrDuplicateInstance = errors.New("config: duplicate auth instance name")
)

type Config struct {
	Server    ServerConfig
	MySQL     MySQLConfig
	Redis     RedisConfig
	Framework FrameworkConfig
	RateLimit RateLimitConfig

	Storage       string `envconfig:"storage" default:"memory"`
	LogLevel      string `envconfig:"log_level" default:"info"`
	Production    bool   `envconfig:"production"`
	InstancesFile string `envconfig:"instances_file" default:"auth.yaml"`

	Instances []plugin.Config `ignored:"true"`
}

type ServerConfig struct {
	Port              int           `envconfig:"port" default:"8080"`
	ReadTimeout       time.Duration `envconfig:"read_timeout" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"write_timeout" default:"15s"`
	IdleTimeout       time.Duration `envconfig:"idle_timeout" default:"60s"`
	ShutdownTimeout   time.Duration `envconfig:"shutdown_timeout" default:"30s"`
	RequestTimeout    time.Duration `envconfig:"request_timeout" default:"30s"`
	TLSCertFile       string        `envconfig:"tls_cert_file"`
	TLSKeyFile        string        `envconfig:"tls_key_file"`
	TrustedProxyCIDRs []string      `envconfig:"trusted_proxy_cidrs" default:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,::1/128,fc00::/7"`
}

type MySQLConfig struct {
	RawDSN   string   `envconfig:"dsn"`
	Host     string   `envconfig:"host"`
	Port     int      `envconfig:"port" default:"3306"`
	User     string   `envconfig:"user" default:"root"`
	Password string   `envconfig:"password"`
	Database string   `envconfig:"database" default:"workos_auth"`
	Replicas []string `envconfig:"replicas"`

	MaxOpenConns    int           `envconfig:"max_open_conns"`
	MaxIdleConns    int           `envconfig:"max_idle_conns"`
	ConnMaxLifetime time.Duration `envconfig:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `envconfig:"addr"`
	Password string `envconfig:"password"`
	DB       int    `envconfig:"db"`
	Prefix   string `envconfig:"prefix" default:"workos-auth"`
}

// Enabled reports whether framework sessions are kept in Redis.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type FrameworkConfig struct {
	Secret       string   `envconfig:"secret"`
	CookiePrefix string   `envconfig:"cookie_prefix" default:"payload"`
	CSRF         []string `envconfig:"csrf"`
	APIPrefix    string   `envconfig:"api_prefix" default:"/api"`
}

type RateLimitConfig struct {
	// PerSecond of zero disables rate limiting of the auth endpoints.
	PerSecond float64 `envconfig:"per_second" default:"5"`
	Burst     int     `envconfig:"burst" default:"20"`
}

// Load reads the process configuration from the environment and the auth
// instances from InstancesFile.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.InstancesFile != "" {
		f, err := os.Open(cfg.InstancesFile)
		if err != nil {
			return nil, fmt.Errorf("open instances file: %w", err)
		}
		defer f.Close()
		cfg.Instances, err = ParseInstances(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.InstancesFile, err)
		}
	}
	return &cfg, nil
}

type instancesFile struct {
	// WorkOS is shared by every instance; fields set on an instance win.
	WorkOS    workos.ProviderConfig `yaml:"workos"`
	Instances []plugin.Config       `yaml:"instances"`
}

// ParseInstances decodes an instances file. ${VAR} references are expanded
// from the environment before decoding so secrets stay out of the file.
func ParseInstances(r io.Reader) ([]plugin.Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)

	var file instancesFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode instances: %w", err)
	}
	for i := range file.Instances {
		file.Instances[i].WorkOS = mergeProvider(file.Instances[i].WorkOS, file.WorkOS)
	}
	return file.Instances, nil
}

func mergeProvider(own, shared workos.ProviderConfig) workos.ProviderConfig {
	if own.ClientID == "" {
		own.ClientID = shared.ClientID
	}
	if own.ClientSecret == "" {
		own.ClientSecret = shared.ClientSecret
	}
	if own.CookiePassword == "" {
		own.CookiePassword = shared.CookiePassword
	}
	if own.Provider == "" && own.Connection == "" && own.Organization == "" {
		own.Provider = shared.Provider
		own.Connection = shared.Connection
		own.Organization = shared.Organization
	}
	return own
}

func (c MySQLConfig) DSN() string {
	if c.RawDSN != "" {
		return withParams(c.RawDSN)
	}
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// ReplicaDSNs returns the read replica DSNs with the same parameters as the
// primary.
func (c MySQLConfig) ReplicaDSNs() []string {
	out := make([]string, 0, len(c.Replicas))
	for _, r := range c.Replicas {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, withParams(r))
		}
	}
	return out
}

func withParams(dsn string) string {
	for _, p := range []string{"parseTime=true", "multiStatements=true"} {
		key := p[:strings.IndexByte(p, '=')]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}
	return dsn
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	switch c.Storage {
	case StorageMemory:
	case StorageMySQL:
		if c.MySQL.DSN() == "" {
			return ErrMySQLRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStorage, c.Storage)
	}
	if len(c.Framework.Secret) < minSecretLength {
		return ErrSecretLength
	}
	if len(c.Instances) == 0 {
		return ErrNoInstances
	}
	seen := make(map[string]bool, len(c.Instances))
	for _, inst := range c.Instances {
		if seen[inst.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateInstance, inst.Name)
		}
		seen[inst.Name] = true
		if err := inst.Validate(); err != nil {
			return fmt.Errorf("auth instance %q: %w", inst.Name, err)
		}
	}
	return nil
}
