// SPDX-License-Identifier: MPL-2.0

package server

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/timetracker/authbridge/assets"
	"github.com/timetracker/authbridge/idp"
	"github.com/timetracker/authbridge/session"
)

// Defaults for a Config.
const (
	DefaultAddress       = ":8080"
	DefaultAssetRoot     = "./dist"
	DefaultSweepInterval = 5 * time.Minute
	DefaultShutdown      = 10 * time.Second
)

// Config is the configuration of a Server.
type Config struct {
	// Domain and ClientID identify the provider tenant.
	Domain   string
	ClientID string

	// ClientSecret is only needed by confidential clients.
	ClientSecret idp.ClientSecret

	// Audience is an optional API identifier access tokens are minted for.
	Audience string

	// ProviderCA is an optional PEM CA cert for the provider's TLS.
	ProviderCA string

	// SigningAlgs are the accepted id_token signing algorithms. Defaults
	// to RS256.
	SigningAlgs []idp.Alg

	// Address is the listen address.
	Address string

	// AssetRoot is the directory of the static files.
	AssetRoot string

	// ModulePath is the URL path of the WebAssembly module.
	ModulePath string

	// SessionTTL is how long an idle browser session is kept.
	SessionTTL time.Duration

	// LoginTTL is how long a login attempt may take.
	LoginTTL time.Duration

	// SweepInterval is how often expired sessions are removed.
	SweepInterval time.Duration

	// TrustProxy derives the page URL from X-Forwarded-Proto and
	// X-Forwarded-Host.
	TrustProxy bool
}

// NewConfig returns a Config for the tenant with every default set.
func NewConfig(domain, clientID string) *Config {
	c := &Config{Domain: domain, ClientID: clientID}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.AssetRoot == "" {
		c.AssetRoot = DefaultAssetRoot
	}
	if c.ModulePath == "" {
		c.ModulePath = assets.DefaultModulePath
	}
	if len(c.SigningAlgs) == 0 {
		c.SigningAlgs = []idp.Alg{idp.RS256}
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = session.DefaultTTL
	}
	if c.LoginTTL == 0 {
		c.LoginTTL = idp.DefaultRequestTTL
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
}

// Validate the server configuration. Every failed check is reported. The
// provider settings are validated the same way idp.Config validates them.
func (c *Config) Validate() error {
	const op = "server.Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, idp.ErrNilParameter)
	}
	var retErr *multierror.Error
	pc := &idp.Config{
		Domain:               c.Domain,
		ClientID:             c.ClientID,
		ProviderCA:           c.ProviderCA,
		SupportedSigningAlgs: c.SigningAlgs,
	}
	if err := pc.Validate(); err != nil {
		retErr = multierror.Append(retErr, err)
	}
	if c.ProviderCA != "" {
		if _, err := pc.HTTPClient(); err != nil {
			retErr = multierror.Append(retErr, err)
		}
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		retErr = multierror.Append(retErr, fmt.Errorf("%s: address %q is invalid: %w", op, c.Address, idp.ErrInvalidParameter))
	}
	if strings.TrimSpace(c.AssetRoot) == "" {
		retErr = multierror.Append(retErr, fmt.Errorf("%s: asset root is empty: %w", op, idp.ErrInvalidParameter))
	}
	if !strings.HasPrefix(c.ModulePath, "/") || !strings.HasSuffix(c.ModulePath, ".wasm") {
		retErr = multierror.Append(retErr, fmt.Errorf("%s: module path %q must be an absolute .wasm path: %w", op, c.ModulePath, idp.ErrInvalidParameter))
	}
	for name, d := range map[string]time.Duration{
		"session ttl":    c.SessionTTL,
		"login ttl":      c.LoginTTL,
		"sweep interval": c.SweepInterval,
	} {
		if d <= 0 {
			retErr = multierror.Append(retErr, fmt.Errorf("%s: %s must be positive: %w", op, name, idp.ErrInvalidParameter))
		}
	}
	return retErr.ErrorOrNil()
}

// idpOptions are the identity client options derived from the config.
func (c *Config) idpOptions() []idp.Option {
	return []idp.Option{
		idp.WithClientSecret(c.ClientSecret),
		idp.WithAudience(c.Audience),
		idp.WithProviderCA(c.ProviderCA),
		idp.WithSupportedSigningAlgs(c.SigningAlgs...),
		idp.WithRequestTTL(c.LoginTTL),
	}
}
