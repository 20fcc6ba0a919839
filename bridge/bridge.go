// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/timetracker/authbridge/idp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
)

// IdentityClient is the identity-provider client a Bridge drives.
// *idp.Client implements it.
type IdentityClient interface {
	HandleRedirectCallback(ctx context.Context, s idp.Session, query url.Values) error
	IsAuthenticated(ctx context.Context, s idp.Session) (bool, error)
	GetUser(ctx context.Context, s idp.Session) (*idp.UserProfile, error)
	LoginWithRedirect(ctx context.Context, s idp.Session, opts idp.LoginOptions) (string, error)
	Logout(s idp.Session, opts idp.LogoutOptions) (string, error)
	Token(ctx context.Context, s idp.Session) (*idp.Token, error)
	Done()
}

var _ IdentityClient = (*idp.Client)(nil)

// ClientFactory creates the IdentityClient for a provider tenant.
type ClientFactory func(ctx context.Context, domain, clientID string) (IdentityClient, error)

// IDPFactory returns a ClientFactory creating *idp.Client. The options are
// given to both idp.NewConfig and idp.New, so config options (ie:
// idp.WithClientSecret) and client options (ie: idp.WithLogger) can be mixed.
func IDPFactory(opt ...idp.Option) ClientFactory {
	return func(ctx context.Context, domain, clientID string) (IdentityClient, error) {
		const op = "bridge.IDPFactory"
		c, err := idp.NewConfig(domain, clientID, opt...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		client, err := idp.New(ctx, c, opt...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return client, nil
	}
}

// Page is one browser request: the URL it asked for and its session.
type Page struct {
	URL     *url.URL
	Session idp.Session

	// Languages are the browser's preferred languages, passed on to the
	// provider's hosted login page.
	Languages []language.Tag
}

// DefaultInitTimeout bounds the creation of the identity client, which
// includes the provider's discovery.
const DefaultInitTimeout = 30 * time.Second

// Bridge owns the identity client handle shared by every page.
type Bridge struct {
	factory     ClientFactory
	logger      hclog.Logger
	initTimeout time.Duration

	// creating deduplicates concurrent creations of the handle. mu is only
	// held to read or publish it, never while the factory runs.
	creating singleflight.Group

	mu       sync.Mutex
	client   IdentityClient
	domain   string
	clientID string
	closed   bool
}

// New creates a Bridge which will create its identity client with factory
// on the first InitAuth.
//
// Supported options: WithLogger, WithInitTimeout
func New(factory ClientFactory, opt ...Option) (*Bridge, error) {
	const op = "bridge.New"
	if factory == nil {
		return nil, newError(op, KindConfiguration, "client factory is nil", idp.ErrNilParameter)
	}
	opts := getBridgeOpts(opt...)
	return &Bridge{
		factory:     factory,
		logger:      opts.withLogger.Named("bridge"),
		initTimeout: opts.withInitTimeout,
	}, nil
}

// Initialized reports whether InitAuth has created the identity client.
func (b *Bridge) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client != nil
}

// init returns the identity client, creating it on first use. A tenant
// different from the one the client was created for is a configuration
// error. Concurrent callers for the same tenant share one creation, and
// each stops waiting when its own ctx is done.
func (b *Bridge) init(ctx context.Context, op, domain, clientID string) (IdentityClient, error) {
	domain, clientID = strings.TrimSpace(domain), strings.TrimSpace(clientID)
	if client, ok, err := b.current(op, domain, clientID); ok || err != nil {
		return client, err
	}
	// the creation outlives a caller which gives up, bounded by initTimeout
	createCtx := context.WithoutCancel(ctx)
	ch := b.creating.DoChan(domain+" "+clientID, func() (interface{}, error) {
		return b.create(createCtx, op, domain, clientID)
	})
	select {
	case <-ctx.Done():
		return nil, wrapError(op, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, wrapError(op, res.Err)
		}
		return res.Val.(IdentityClient), nil
	}
}

// current returns the published handle. ok is false when there is none yet.
func (b *Bridge) current(op, domain, clientID string) (client IdentityClient, ok bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.closed:
		return nil, false, newError(op, KindNotInitialized, "bridge is closed", nil)
	case b.client == nil:
		return nil, false, nil
	case domain != b.domain || clientID != b.clientID:
		return nil, false, b.tenantMismatch(op)
	}
	return b.client, true, nil
}

func (b *Bridge) tenantMismatch(op string) *Error {
	return newError(op, KindConfiguration,
		fmt.Sprintf("already initialized for domain %q and client id %q", b.domain, b.clientID),
		idp.ErrInvalidParameter)
}

// create runs the factory and publishes its client. A failure isn't
// retained, the next caller tries again.
func (b *Bridge) create(ctx context.Context, op, domain, clientID string) (IdentityClient, error) {
	if client, ok, err := b.current(op, domain, clientID); ok || err != nil {
		return client, err
	}
	ctx, cancel := context.WithTimeout(ctx, b.initTimeout)
	defer cancel()
	client, err := b.factory(ctx, domain, clientID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.closed:
		client.Done()
		return nil, newError(op, KindNotInitialized, "bridge is closed", nil)
	case b.client != nil:
		// another tenant was published while the factory ran
		client.Done()
		return nil, b.tenantMismatch(op)
	}
	b.client, b.domain, b.clientID = client, domain, clientID
	b.logger.Info("identity client initialized", "domain", domain, "client_id", clientID)
	return client, nil
}

// Init creates the identity client for the tenant unless it exists already.
// It lets a server discover the provider at startup instead of on the first
// page; InitAuth works the same either way.
func (b *Bridge) Init(ctx context.Context, domain, clientID string) error {
	const op = "Bridge.Init"
	_, err := b.init(ctx, op, domain, clientID)
	return err
}

func (b *Bridge) initialized(op string) (IdentityClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil, newError(op, KindNotInitialized, "InitAuth has not completed", nil)
	}
	return b.client, nil
}

// InitAuth initializes the identity client for the tenant, completes the
// page's redirect login when its URL is a redirect callback, then returns
// the signed in user, or nil when the page's browser isn't authenticated.
func (b *Bridge) InitAuth(ctx context.Context, domain, clientID string, p Page) (*idp.UserProfile, error) {
	const op = "Bridge.InitAuth"
	if err := checkPage(op, p); err != nil {
		return nil, err
	}
	client, err := b.init(ctx, op, domain, clientID)
	if err != nil {
		return nil, err
	}

	switch {
	case IsErrorCallback(p.URL):
		q := p.URL.Query()
		p.Session.TakeRequest(q.Get("state"))
		cbErr := idp.NewCallbackError(q)
		b.logger.Debug("provider refused login", "error", cbErr.Code, "description", cbErr.Description)
		return nil, wrapError(op, cbErr)
	case IsRedirectCallback(p.URL):
		if err := client.HandleRedirectCallback(ctx, p.Session, p.URL.Query()); err != nil {
			return nil, wrapError(op, err)
		}
		b.logger.Debug("redirect callback completed")
	}

	ok, err := client.IsAuthenticated(ctx, p.Session)
	if err != nil {
		return nil, wrapError(op, err)
	}
	if !ok {
		return nil, nil
	}
	u, err := client.GetUser(ctx, p.Session)
	if err != nil {
		return nil, wrapError(op, err)
	}
	return u, nil
}

// BeginSignUp starts a login on the provider's sign up screen and returns
// the URL to redirect the browser to. The provider returns the browser to
// the page's origin.
func (b *Bridge) BeginSignUp(ctx context.Context, p Page) (string, error) {
	return b.beginLogin(ctx, "Bridge.BeginSignUp", p, idp.ScreenHintSignup)
}

// BeginLogIn starts a login and returns the URL to redirect the browser to.
// The provider returns the browser to the page's origin.
func (b *Bridge) BeginLogIn(ctx context.Context, p Page) (string, error) {
	return b.beginLogin(ctx, "Bridge.BeginLogIn", p, "")
}

func (b *Bridge) beginLogin(ctx context.Context, op string, p Page, screenHint string) (string, error) {
	if err := checkPage(op, p); err != nil {
		return "", err
	}
	client, err := b.initialized(op)
	if err != nil {
		return "", err
	}
	authURL, err := client.LoginWithRedirect(ctx, p.Session, idp.LoginOptions{
		RedirectURI: Origin(p.URL),
		ScreenHint:  screenHint,
		UILocales:   p.Languages,
	})
	if err != nil {
		return "", wrapError(op, err)
	}
	return authURL, nil
}

// LogOut signs the page's browser out and returns the provider URL which
// ends the provider's session and returns the browser to the page's origin.
// It doesn't block on the provider.
func (b *Bridge) LogOut(p Page) (string, error) {
	const op = "Bridge.LogOut"
	if err := checkPage(op, p); err != nil {
		return "", err
	}
	client, err := b.initialized(op)
	if err != nil {
		return "", err
	}
	logoutURL, err := client.Logout(p.Session, idp.LogoutOptions{ReturnTo: Origin(p.URL)})
	if err != nil {
		return "", wrapError(op, err)
	}
	return logoutURL, nil
}

// Token returns the access token of the page's browser.
func (b *Bridge) Token(ctx context.Context, p Page) (*idp.Token, error) {
	const op = "Bridge.Token"
	if err := checkPage(op, p); err != nil {
		return nil, err
	}
	client, err := b.initialized(op)
	if err != nil {
		return nil, err
	}
	t, err := client.Token(ctx, p.Session)
	if err != nil {
		return nil, wrapError(op, err)
	}
	return t, nil
}

// Close releases the identity client, including one still being created.
// The Bridge must not be used afterwards.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.client != nil {
		b.client.Done()
		b.client = nil
	}
}
