// Package config loads the ydns-accounts configuration from YDNS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Database drivers.
const (
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
	DriverDatastore = "datastore"
)

// Config is the full service configuration.
type Config struct {
	ListenAddr string     `env:"YDNS_LISTEN_ADDR" envDefault:":8080"`
	GRPCAddr   string     `env:"YDNS_GRPC_ADDR"` // empty disables the gRPC listener
	BaseURL    string     `env:"YDNS_BASE_URL" envDefault:"http://localhost:8080"`
	LogFormat  string     `env:"YDNS_LOG_FORMAT" envDefault:"text"`
	LogLevel   slog.Level `env:"YDNS_LOG_LEVEL" envDefault:"INFO"`

	JWTSecret       string        `env:"YDNS_JWT_SECRET,unset"`
	SessionLifetime time.Duration `env:"YDNS_SESSION_LIFETIME" envDefault:"24h"`
	SecureCookies   bool          `env:"YDNS_SECURE_COOKIES" envDefault:"false"`

	// TrustGRPCAccountID honours the bare account id header on the gRPC
	// listener. Only for listeners behind an internal gateway.
	TrustGRPCAccountID bool `env:"YDNS_GRPC_TRUST_ACCOUNT_ID" envDefault:"false"`

	// TrustedProxies are addresses or CIDR prefixes of reverse proxies whose
	// forwarding headers name the client for rate limiting.
	TrustedProxies []string `env:"YDNS_TRUSTED_PROXIES" envSeparator:","`

	Database  DatabaseConfig  `envPrefix:"YDNS_DB_"`
	RateLimit RateLimitConfig `envPrefix:"YDNS_RATE_"`

	Facebook ProviderConfig `envPrefix:"YDNS_FACEBOOK_"`
	GitHub   ProviderConfig `envPrefix:"YDNS_GITHUB_"`
	Google   ProviderConfig `envPrefix:"YDNS_GOOGLE_"`
}

// DatabaseConfig selects and locates the store backend.
type DatabaseConfig struct {
	Driver    string `env:"DRIVER" envDefault:"sqlite"`
	DSN       string `env:"DSN" envDefault:"file:ydns-accounts.db"`
	Project   string `env:"DATASTORE_PROJECT"`
	Namespace string `env:"DATASTORE_NAMESPACE"`
}

// RateLimitConfig bounds login, signup and reset requests per client IP.
type RateLimitConfig struct {
	PerMinute int `env:"PER_MINUTE" envDefault:"10"`
	Burst     int `env:"BURST" envDefault:"5"`
}

// ProviderConfig holds one OAuth2 client registration. A provider without
// a client id is disabled.
type ProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET,unset"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

func (p ProviderConfig) Enabled() bool { return p.ClientID != "" }

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish validates the parsed values and derives provider callback URLs
// from BaseURL when they are not given.
func (c *Config) finish() error {
	var errs []error

	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("YDNS_BASE_URL %q is not an absolute URL", c.BaseURL))
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("YDNS_DB_DSN is required"))
		}
	case DriverDatastore:
		if c.Database.Project == "" {
			errs = append(errs, errors.New("YDNS_DB_DATASTORE_PROJECT is required for the datastore driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown YDNS_DB_DRIVER %q", c.Database.Driver))
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown YDNS_LOG_FORMAT %q", c.LogFormat))
	}

	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}

	for _, v := range c.TrustedProxies {
		v = strings.TrimSpace(v)
		if _, err := netip.ParsePrefix(v); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(v); err != nil {
			errs = append(errs, fmt.Errorf("YDNS_TRUSTED_PROXIES entry %q is not an address or prefix", v))
		}
	}

	for name, p := range map[string]*ProviderConfig{"facebook": &c.Facebook, "github": &c.GitHub, "google": &c.Google} {
		if !p.Enabled() {
			continue
		}
		if p.ClientSecret == "" {
			errs = append(errs, fmt.Errorf("%s client secret is required", name))
		}
		if p.CallbackURL == "" {
			p.CallbackURL = c.BaseURL + "/accounts/oauth/" + name
		}
	}
	return errors.Join(errs...)
}
