// SPDX-License-Identifier: MPL-2.0

package idp

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		domain    string
		clientID  string
		opt       []Option
		want      *Config
		wantErr   bool
		wantIsErr error
	}{
		{
			name:     "valid-defaults",
			domain:   "tenant.eu.auth0.com",
			clientID: "client-id",
			want: &Config{
				Domain:               "tenant.eu.auth0.com",
				ClientID:             "client-id",
				Scopes:               DefaultScopes,
				SupportedSigningAlgs: []Alg{RS256},
			},
		},
		{
			name:     "valid-all-options",
			domain:   "https://tenant.eu.auth0.com",
			clientID: "client-id",
			opt: []Option{
				WithClientSecret("shhh"),
				WithScopes("email"),
				WithAudience("https://api.example.com"),
				WithSupportedSigningAlgs(ES256, RS256),
				WithProviderCA("ca"),
			},
			want: &Config{
				Domain:               "https://tenant.eu.auth0.com",
				ClientID:             "client-id",
				ClientSecret:         "shhh",
				Scopes:               []string{"email"},
				Audience:             "https://api.example.com",
				SupportedSigningAlgs: []Alg{ES256, RS256},
				ProviderCA:           "ca",
			},
		},
		{
			name:      "missing-client-id",
			domain:    "tenant.eu.auth0.com",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "missing-domain",
			clientID:  "client-id",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "domain-with-path",
			domain:    "tenant.eu.auth0.com/path",
			clientID:  "client-id",
			wantErr:   true,
			wantIsErr: ErrInvalidIssuer,
		},
		{
			name:      "domain-with-query",
			domain:    "tenant.eu.auth0.com?x=y",
			clientID:  "client-id",
			wantErr:   true,
			wantIsErr: ErrInvalidIssuer,
		},
		{
			name:      "bad-scheme",
			domain:    "ftp://tenant.eu.auth0.com",
			clientID:  "client-id",
			wantErr:   true,
			wantIsErr: ErrInvalidIssuer,
		},
		{
			name:      "unsupported-alg",
			domain:    "tenant.eu.auth0.com",
			clientID:  "client-id",
			opt:       []Option{WithSupportedSigningAlgs("HS256")},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.domain, tt.clientID, tt.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	t.Run("nil", func(t *testing.T) {
		var c *Config
		err := c.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNilParameter))
	})
	t.Run("reports-every-failure", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := &Config{}
		err := c.Validate()
		require.Error(err)
		assert.Contains(err.Error(), "client id is empty")
		assert.Contains(err.Error(), "domain is empty")
		assert.Contains(err.Error(), "supported algorithms is empty")
	})
}

func TestConfig_Issuer(t *testing.T) {
	t.Parallel()
	tests := []struct {
		domain string
		want   string
	}{
		{"tenant.eu.auth0.com", "https://tenant.eu.auth0.com/"},
		{"tenant.eu.auth0.com/", "https://tenant.eu.auth0.com/"},
		{"https://tenant.eu.auth0.com", "https://tenant.eu.auth0.com/"},
		{"http://localhost:8080", "http://localhost:8080/"},
		{" 127.0.0.1:4443 ", "https://127.0.0.1:4443/"},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			c := &Config{Domain: tt.domain}
			assert.Equal(t, tt.want, c.Issuer())
		})
	}
}

func TestConfig_HTTPClient(t *testing.T) {
	t.Parallel()
	t.Run("system-ca", func(t *testing.T) {
		c := &Config{}
		got, err := c.HTTPClient()
		require.NoError(t, err)
		assert.NotNil(t, got.Transport)
		assert.Equal(t, DefaultHTTPTimeout, got.Timeout)
	})
	t.Run("invalid-ca", func(t *testing.T) {
		c := &Config{ProviderCA: "not a pem"}
		_, err := c.HTTPClient()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidCACert))
	})
}

func TestClientSecret_Redacted(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	s := ClientSecret("super-secret")
	assert.Equal(RedactedClientSecret, s.String())
	assert.Equal(RedactedClientSecret, fmt.Sprintf("%s", s))
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(`"`+RedactedClientSecret+`"`, string(b))
}
