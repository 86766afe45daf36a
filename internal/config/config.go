// Package config holds the immutable service configuration: listener
// settings, signing-key source, canonical roles, registered clients and
// registered policies. Everything is loaded once at startup and validated
// eagerly so a bad registration fails the process instead of a request.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment-driven part of the configuration.
type Config struct {
	Addr        string        `env:"IDENTITY_ADDR" envDefault:":8080"`
	PostgresDSN string        `env:"IDENTITY_PG_DSN"`
	SigningKey  string        `env:"IDENTITY_SIGNING_KEY_FILE"`
	Issuer      string        `env:"IDENTITY_ISSUER" envDefault:"identity-api"`
	Audience    []string      `env:"IDENTITY_AUDIENCE" envSeparator:"," envDefault:"WebAPI"`
	AccessTTL   time.Duration `env:"IDENTITY_ACCESS_TTL" envDefault:"900s"`
	RefreshTTL  time.Duration `env:"IDENTITY_REFRESH_TTL" envDefault:"336h"`

	AdminUsername string `env:"IDENTITY_ADMIN_USERNAME" envDefault:"admin@gmail.com"`
	AdminPassword string `env:"IDENTITY_ADMIN_PASSWORD" envDefault:"Password123*"`

	Roles []string `env:"IDENTITY_ROLES" envSeparator:"," envDefault:"administrator,user"`
}

// Client is a static client registration: which scopes it may request, and
// whether it receives refresh tokens.
type Client struct {
	ID            string
	AllowedScopes []string
	OfflineAccess bool
	// AccessTTL overrides the service-wide access token lifetime when set.
	AccessTTL time.Duration
}

// AllowsScope reports whether the client may request the given scope.
func (c Client) AllowsScope(scope string) bool {
	for _, s := range c.AllowedScopes {
		if s == scope {
			return true
		}
	}
	return false
}

// PolicySpec declares a named policy over the claim set. Values acts as a
// logical OR: the claim kind must carry one of them.
type PolicySpec struct {
	Name      string
	ClaimKind string
	Values    []string
}

// Load reads environment configuration and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("issuer is required")
	}
	if c.AccessTTL <= 0 {
		return fmt.Errorf("access ttl must be positive")
	}
	if c.RefreshTTL <= 0 {
		return fmt.Errorf("refresh ttl must be positive")
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("at least one canonical role is required")
	}
	if strings.TrimSpace(c.AdminUsername) == "" || strings.TrimSpace(c.AdminPassword) == "" {
		return fmt.Errorf("administrator seed credentials are required")
	}
	return nil
}

// Scopes the service understands. Client registrations may only reference
// these.
var KnownScopes = []string{"openid", "profile", "roles", "WebAPI"}

// Clients returns the static client registrations. The single-page client
// authenticates with the resource-owner password grant and needs no secret.
func Clients() []Client {
	return []Client{
		{
			ID:            "AngularSPA",
			AllowedScopes: []string{"openid", "profile", "roles", "WebAPI"},
			OfflineAccess: true,
			AccessTTL:     15 * time.Minute,
		},
	}
}

// Policies returns the static policy registrations.
func Policies() []PolicySpec {
	return []PolicySpec{
		{Name: "Manage Accounts", ClaimKind: "role", Values: []string{"administrator"}},
		{Name: "Access Resources", ClaimKind: "role", Values: []string{"user", "administrator"}},
	}
}
