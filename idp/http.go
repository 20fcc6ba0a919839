// SPDX-License-Identifier: MPL-2.0

package idp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
)

// DefaultHTTPTimeout bounds every request made to the provider.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPClient creates a new http client for the configured provider. It
// uses the optional ProviderCA if one was configured, otherwise the
// installed system CA chain. Requests time out after DefaultHTTPTimeout.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
	}
	return &http.Client{
		Transport: tr,
		Timeout:   DefaultHTTPTimeout,
	}, nil
}

// HTTPClientContext returns a new Context that carries the provided HTTP
// client. It sets the same context key used by the
// github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	return oidc.ClientContext(ctx, client)
}
