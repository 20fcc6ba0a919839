// SPDX-License-Identifier: MPL-2.0

package idp

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// DefaultScopes are requested in addition to the required "openid" scope
// when no scopes are configured.
var DefaultScopes = []string{"profile", "email"}

// Config represents the configuration for a tenant of an identity provider.
type Config struct {
	// Domain is the provider tenant's domain, ie: tenant.eu.auth0.com. A
	// scheme may be included; https is assumed when it's not.
	Domain string

	// ClientID is the relying party id.
	ClientID string

	// ClientSecret is the optional relying party secret. Public clients
	// (SPAs) don't have one and rely on PKCE alone.
	ClientSecret ClientSecret

	// Scopes is a list of additional oidc scopes to request of the provider.
	// The required "openid" scope is always requested.
	Scopes []string

	// Audience is an optional API identifier, which providers like Auth0
	// use to mint access tokens for that API.
	Audience string

	// SupportedSigningAlgs is a list of supported id_token signing
	// algorithms.
	SupportedSigningAlgs []Alg

	// ProviderCA is an optional CA cert (PEM) to use when sending requests
	// to the provider.
	ProviderCA string
}

// NewConfig composes a new config for a provider tenant.
//
// Supported options: WithClientSecret, WithScopes, WithAudience,
// WithSupportedSigningAlgs, WithProviderCA
func NewConfig(domain string, clientID string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Domain:               domain,
		ClientID:             clientID,
		ClientSecret:         opts.withClientSecret,
		Scopes:               opts.withScopes,
		Audience:             opts.withAudience,
		SupportedSigningAlgs: opts.withSupportedSigningAlgs,
		ProviderCA:           opts.withProviderCA,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration. It verifies the domain and client id
// are set and well formed, but it doesn't verify the provider is
// discoverable via an http request. Every failed check is reported.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var retErr *multierror.Error
	if strings.TrimSpace(c.ClientID) == "" {
		retErr = multierror.Append(retErr, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter))
	}
	switch {
	case strings.TrimSpace(c.Domain) == "":
		retErr = multierror.Append(retErr, fmt.Errorf("%s: domain is empty: %w", op, ErrInvalidParameter))
	default:
		u, err := url.Parse(c.Issuer())
		switch {
		case err != nil:
			retErr = multierror.Append(retErr, fmt.Errorf("%s: domain %q is invalid: %w", op, c.Domain, ErrInvalidIssuer))
		case u.Scheme != "https" && u.Scheme != "http":
			retErr = multierror.Append(retErr, fmt.Errorf("%s: domain %q scheme is not http or https: %w", op, c.Domain, ErrInvalidIssuer))
		case u.Host == "":
			retErr = multierror.Append(retErr, fmt.Errorf("%s: domain %q has no host: %w", op, c.Domain, ErrInvalidIssuer))
		case u.Path != "/" || u.RawQuery != "" || u.Fragment != "":
			retErr = multierror.Append(retErr, fmt.Errorf("%s: domain %q must not have a path, query or fragment: %w", op, c.Domain, ErrInvalidIssuer))
		}
	}
	if len(c.SupportedSigningAlgs) == 0 {
		retErr = multierror.Append(retErr, fmt.Errorf("%s: supported algorithms is empty: %w", op, ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			retErr = multierror.Append(retErr, fmt.Errorf("%s: unsupported algorithm %q: %w", op, a, ErrInvalidParameter))
		}
	}
	return retErr.ErrorOrNil()
}

// Issuer returns the issuer URL derived from the domain. It always ends in
// a "/", which is how Auth0 tenants publish their issuer.
func (c *Config) Issuer() string {
	d := strings.TrimSuffix(strings.TrimSpace(c.Domain), "/")
	if !strings.Contains(d, "://") {
		d = "https://" + d
	}
	return d + "/"
}

// configOptions is the set of available options
type configOptions struct {
	withClientSecret         ClientSecret
	withScopes               []string
	withAudience             string
	withSupportedSigningAlgs []Alg
	withProviderCA           string
}

func configDefaults() configOptions {
	return configOptions{
		withScopes:               DefaultScopes,
		withSupportedSigningAlgs: []Alg{RS256},
	}
}

func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithClientSecret provides an optional client secret for confidential
// clients.
func WithClientSecret(secret ClientSecret) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClientSecret = secret
		}
	}
}

// WithScopes provides an optional list of scopes, replacing DefaultScopes.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithAudience provides an optional API audience.
func WithAudience(audience string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudience = audience
		}
	}
}

// WithSupportedSigningAlgs provides the id_token signing algorithms to
// accept. The default is RS256.
func WithSupportedSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && len(algs) > 0 {
			o.withSupportedSigningAlgs = algs
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's http
// client.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}
