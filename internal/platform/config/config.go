// Copyright (c) 2026 Castellan Authors. All rights reserved.

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, token codec) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Castellan API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis): sessions, identity cache, permission cache
	RedisURL string `env:"REDIS_URL,required"`

	// Token signing
	TokenSecret    string `env:"TOKEN_SECRET,required"`
	TokenAlgorithm string `env:"TOKEN_ALGORITHM" envDefault:"HS256"`

	// Token lifetimes. The access token is the short-lived bearer credential;
	// the refresh token must always outlive it.
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"168h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"192h"`

	// MultiLoginDefault allows concurrent sessions for every user regardless
	// of the per-user multi-login flag. Leave false to enforce the per-user
	// single-active-session policy.
	MultiLoginDefault bool `env:"MULTI_LOGIN_DEFAULT" envDefault:"false"`

	// RBAC behavior
	RBACMenuMode          bool          `env:"RBAC_MENU_MODE"           envDefault:"true"`
	RBACExemptPaths       []string      `env:"RBAC_EXEMPT_PATHS"        envSeparator:"," envDefault:"/api/v1/auth/login,/api/v1/auth/refresh,/health,/ready"`
	RBACExemptPermissions []string      `env:"RBAC_EXEMPT_PERMISSIONS"  envSeparator:","`
	PermissionCacheTTL    time.Duration `env:"PERMISSION_CACHE_TTL"     envDefault:"1h"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {
	cfg := &Config{}

	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces cross-field invariants that struct tags cannot express.
func (c *Config) validate() error {
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("config: REFRESH_TOKEN_TTL (%s) must exceed ACCESS_TOKEN_TTL (%s)",
			c.RefreshTokenTTL, c.AccessTokenTTL)
	}
	return nil
}

// IdentityCacheTTL returns the TTL for cached identities. It is bounded by
// the access-token TTL so a revoked or mutated identity never outlives the
// credential that referenced it.
func (c *Config) IdentityCacheTTL() time.Duration {
	if c.AccessTokenTTL < c.PermissionCacheTTL {
		return c.AccessTokenTTL
	}
	return c.PermissionCacheTTL
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
