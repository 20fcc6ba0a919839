// SPDX-License-Identifier: MPL-2.0

package idp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

// DefaultDiscoveryTries is the number of attempts made to reach the
// provider's discovery document before New gives up.
const DefaultDiscoveryTries = 3

// LoginOptions are the options of a redirect based login.
type LoginOptions struct {
	// RedirectURI is where the provider sends the browser back to. It
	// receives the "code" and "state" callback parameters.
	RedirectURI string

	// ScreenHint selects the initial screen of the provider's hosted login
	// page, ie: ScreenHintSignup.
	ScreenHint string

	// Prompt is an optional oidc prompt value.
	Prompt string

	// UILocales are optional preferred languages for the provider's UI.
	UILocales []language.Tag
}

// LogoutOptions are the options of a redirect based logout.
type LogoutOptions struct {
	// ReturnTo is where the provider sends the browser after logout.
	ReturnTo string
}

// Client is an identity-provider client for one provider tenant. It's
// concurrently safe and intended to be shared by every session.
type Client struct {
	config   *Config
	provider *oidc.Provider
	client   *http.Client
	logger   hclog.Logger

	userInfoURL   string
	endSessionURL string
	requestTTL    time.Duration
	nowFunc       func() time.Time

	mu sync.Mutex
}

// New creates and initializes a Client. Initializing the client includes
// making http requests to the provider's discovery endpoint, which are
// retried with an exponential backoff when the provider can't be reached.
//
// See Client.Done() which must be called to release client resources.
//
// Supported options: WithLogger, WithNow, WithRequestTTL, WithDiscoveryTries
func New(ctx context.Context, c *Config, opt ...Option) (*Client, error) {
	const op = "New"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	opts := getClientOpts(opt...)

	httpClient, err := c.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	logger := opts.withLogger.Named("idp")

	discover := func() (*oidc.Provider, error) {
		p, err := oidc.NewProvider(HTTPClientContext(ctx, httpClient), c.Issuer())
		if err != nil && !isTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return p, err
	}
	provider, err := backoff.Retry(ctx, discover,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(opts.withDiscoveryTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Warn("provider discovery failed, retrying", "issuer", c.Issuer(), "retry_in", d, "error", err)
		}),
	)
	if err != nil {
		httpClient.CloseIdleConnections()
		return nil, fmt.Errorf("%s: unable to discover provider %s: %w: %w", op, c.Issuer(), ErrDiscoveryFailed, err)
	}

	var extra struct {
		UserInfoURL   string `json:"userinfo_endpoint"`
		EndSessionURL string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		httpClient.CloseIdleConnections()
		return nil, fmt.Errorf("%s: unable to read discovery document: %w: %w", op, ErrDiscoveryFailed, err)
	}
	logger.Debug("provider discovered", "issuer", c.Issuer(), "end_session", extra.EndSessionURL != "")

	return &Client{
		config:        c,
		provider:      provider,
		client:        httpClient,
		logger:        logger,
		userInfoURL:   extra.UserInfoURL,
		endSessionURL: extra.EndSessionURL,
		requestTTL:    opts.withRequestTTL,
		nowFunc:       opts.withNowFunc,
	}, nil
}

// isTransient reports whether a discovery failure is worth retrying: the
// provider couldn't be reached, as opposed to answering with something
// unusable.
func isTransient(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Done with the client's background resources and must be called for every
// Client created.
func (c *Client) Done() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
}

// Config returns the client's provider config.
func (c *Client) Config() *Config { return c.config }

func (c *Client) oauth2Config(redirectURL string) *oauth2.Config {
	// Add the "openid" scope, which is a required scope for oidc flows
	scopes := append([]string{oidc.ScopeOpenID}, c.config.Scopes...)
	return &oauth2.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: string(c.config.ClientSecret),
		RedirectURL:  redirectURL,
		Endpoint:     c.provider.Endpoint(),
		Scopes:       scopes,
	}
}

// AuthURL returns the provider URL which starts the authorization code flow
// for the login Request.
func (c *Client) AuthURL(r *Request) (string, error) {
	const op = "Client.AuthURL"
	if r == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.State() == r.Nonce() {
		return "", fmt.Errorf("%s: request state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(r.Nonce()),
		oauth2.S256ChallengeOption(r.Verifier()),
	}
	if r.ScreenHint() != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("screen_hint", r.ScreenHint()))
	}
	if r.Prompt() != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("prompt", r.Prompt()))
	}
	if len(r.UILocales()) > 0 {
		locales := make([]string, 0, len(r.UILocales()))
		for _, l := range r.UILocales() {
			locales = append(locales, l.String())
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("ui_locales", strings.Join(locales, " ")))
	}
	if c.config.Audience != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("audience", c.config.Audience))
	}
	return c.oauth2Config(r.RedirectURL()).AuthCodeURL(r.State(), authCodeOpts...), nil
}

// LoginWithRedirect starts a login attempt for the session and returns the
// provider URL the browser must be redirected to.
func (c *Client) LoginWithRedirect(ctx context.Context, s Session, opts LoginOptions) (string, error) {
	const op = "Client.LoginWithRedirect"
	if s == nil {
		return "", fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	r, err := NewRequest(c.requestTTL, opts.RedirectURI,
		WithScreenHint(opts.ScreenHint),
		WithPrompt(opts.Prompt),
		WithUILocales(opts.UILocales...),
		WithNow(c.nowFunc),
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	authURL, err := c.AuthURL(r)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.AddRequest(r)
	c.logger.Debug("login started", "screen_hint", opts.ScreenHint, "redirect_uri", opts.RedirectURI)
	return authURL, nil
}

// HandleRedirectCallback completes a login attempt from the callback's query
// parameters: it matches the returned state to the session's pending
// Request, exchanges the code and verifies the id_token. On success the
// session holds the new Token.
func (c *Client) HandleRedirectCallback(ctx context.Context, s Session, query url.Values) error {
	const op = "Client.HandleRedirectCallback"
	if s == nil {
		return fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	state := query.Get("state")
	if state == "" {
		return fmt.Errorf("%s: missing state parameter: %w", op, ErrInvalidResponse)
	}
	r, ok := s.TakeRequest(state)
	if !ok {
		// could have expired or it could be invalid... no way to known for sure
		return fmt.Errorf("%s: login request for state %q: %w", op, state, ErrNotFound)
	}
	if cbErr := NewCallbackError(query); cbErr != nil {
		return fmt.Errorf("%s: %w", op, cbErr)
	}
	if r.IsExpired() {
		return fmt.Errorf("%s: login request for state %q: %w", op, state, ErrExpiredRequest)
	}
	code := query.Get("code")
	if code == "" {
		return fmt.Errorf("%s: missing code parameter: %w", op, ErrInvalidResponse)
	}
	t, err := c.Exchange(ctx, r, code)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.SetToken(t)
	s.SetUser(nil)
	return nil
}

// Exchange will request a token from the provider's token endpoint, using
// the authorization code and the Request's PKCE verifier, then verify the
// returned id_token against the Request's nonce.
func (c *Client) Exchange(ctx context.Context, r *Request, authorizationCode string) (*Token, error) {
	const op = "Client.Exchange"
	if r == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	oauth2Token, err := c.oauth2Config(r.RedirectURL()).Exchange(
		HTTPClientContext(ctx, c.client),
		authorizationCode,
		oauth2.VerifierOption(r.Verifier()),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w: %w", op, ErrExchangeFailed, err)
	}
	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%s: id_token is missing from auth code exchange: %w", op, ErrMissingIDToken)
	}
	verified, err := c.VerifyIDToken(ctx, IDToken(rawIDToken), r.Nonce())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	expiry := oauth2Token.Expiry
	if expiry.IsZero() {
		expiry = verified.Expiry
	}
	return &Token{
		AccessToken:  AccessToken(oauth2Token.AccessToken),
		RefreshToken: RefreshToken(oauth2Token.RefreshToken),
		IDToken:      IDToken(rawIDToken),
		Expiry:       expiry,
		nowFunc:      c.nowFunc,
	}, nil
}

// VerifyIDToken will verify the inbound IDToken. It verifies it's been
// signed by the provider, that it was issued for this client and that it
// carries the expected nonce.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (c *Client) VerifyIDToken(ctx context.Context, t IDToken, nonce string) (*oidc.IDToken, error) {
	const op = "Client.VerifyIDToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if nonce == "" {
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	algs := make([]string, 0, len(c.config.SupportedSigningAlgs))
	for _, a := range c.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	verifier := c.provider.Verifier(&oidc.Config{
		ClientID:             c.config.ClientID,
		SupportedSigningAlgs: algs,
		Now:                  c.nowFunc,
	})
	verified, err := verifier.Verify(HTTPClientContext(ctx, c.client), string(t))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIDTokenVerificationFailed, err)
	}
	if verified.Nonce != nonce {
		return nil, fmt.Errorf("%s: id_token nonce does not match request: %w", op, ErrInvalidNonce)
	}
	return verified, nil
}

// IsAuthenticated reports whether the session holds a valid token.
func (c *Client) IsAuthenticated(ctx context.Context, s Session) (bool, error) {
	const op = "Client.IsAuthenticated"
	if s == nil {
		return false, fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	return s.Token().Valid(), nil
}

// GetUser returns the session's user profile. It's built from the id_token
// claims and, when the provider has a userinfo endpoint, the userinfo
// claims. The result is cached in the session until the next login.
func (c *Client) GetUser(ctx context.Context, s Session) (*UserProfile, error) {
	const op = "Client.GetUser"
	if s == nil {
		return nil, fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	t := s.Token()
	if !t.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}
	if u := s.User(); u != nil {
		return u, nil
	}
	claims := map[string]interface{}{}
	if err := t.IDToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to read id_token claims: %w", op, err)
	}
	if c.userInfoURL != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: string(t.AccessToken),
			TokenType:   "Bearer",
		})
		userInfo, err := c.provider.UserInfo(HTTPClientContext(ctx, c.client), ts)
		if err != nil {
			return nil, fmt.Errorf("%s: provider UserInfo request failed: %w: %w", op, ErrUserInfoFailed, err)
		}
		// https://openid.net/specs/openid-connect-core-1_0.html#UserInfoResponse
		if userInfo.Subject != claims["sub"] {
			return nil, fmt.Errorf("%s: userinfo subject %q does not match id_token: %w", op, userInfo.Subject, ErrUserInfoFailed)
		}
		infoClaims := map[string]interface{}{}
		if err := userInfo.Claims(&infoClaims); err != nil {
			return nil, fmt.Errorf("%s: failed to get UserInfo claims: %w: %w", op, ErrUserInfoFailed, err)
		}
		for k, v := range infoClaims {
			claims[k] = v
		}
	}
	u := NewUserProfile(claims)
	s.SetUser(u)
	return u, nil
}

// Token returns the session's token when it's valid.
func (c *Client) Token(ctx context.Context, s Session) (*Token, error) {
	const op = "Client.Token"
	if s == nil {
		return nil, fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	t := s.Token()
	if !t.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}
	return t, nil
}

// Logout clears the session and returns the provider URL which ends the
// provider's own session and then sends the browser to opts.ReturnTo. The
// provider's end_session_endpoint is used when it advertises one, otherwise
// the Auth0 /v2/logout endpoint.
func (c *Client) Logout(s Session, opts LogoutOptions) (string, error) {
	const op = "Client.Logout"
	if s == nil {
		return "", fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	if opts.ReturnTo == "" {
		return "", fmt.Errorf("%s: return to URL is empty: %w", op, ErrInvalidParameter)
	}
	var idTokenHint IDToken
	if t := s.Token(); t != nil {
		idTokenHint = t.IDToken
	}
	s.Clear()

	if c.endSessionURL != "" {
		u, err := url.Parse(c.endSessionURL)
		if err != nil {
			return "", fmt.Errorf("%s: invalid end_session_endpoint: %w", op, ErrInvalidIssuer)
		}
		q := u.Query()
		q.Set("client_id", c.config.ClientID)
		q.Set("post_logout_redirect_uri", opts.ReturnTo)
		if idTokenHint != "" {
			q.Set("id_token_hint", string(idTokenHint))
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	q := url.Values{}
	q.Set("client_id", c.config.ClientID)
	q.Set("returnTo", opts.ReturnTo)
	return c.config.Issuer() + "v2/logout?" + q.Encode(), nil
}

type clientOptions struct {
	withLogger         hclog.Logger
	withRequestTTL     time.Duration
	withDiscoveryTries uint
	withNowFunc        func() time.Time
}

func clientDefaults() clientOptions {
	return clientOptions{
		withLogger:         hclog.NewNullLogger(),
		withRequestTTL:     DefaultRequestTTL,
		withDiscoveryTries: DefaultDiscoveryTries,
		withNowFunc:        time.Now,
	}
}

func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithRequestTTL provides how long a login attempt stays valid.
func WithRequestTTL(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && d > 0 {
			o.withRequestTTL = d
		}
	}
}

// WithDiscoveryTries provides the number of discovery attempts New makes.
func WithDiscoveryTries(n uint) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && n > 0 {
			o.withDiscoveryTries = n
		}
	}
}
