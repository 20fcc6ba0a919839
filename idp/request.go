// SPDX-License-Identifier: MPL-2.0

package idp

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

// DefaultRequestTTL is how long a login attempt may take before its
// callback is refused.
const DefaultRequestTTL = 10 * time.Minute

// DefaultExpirySkew defines a default time skew when checking a Request's
// expiration.
const DefaultExpirySkew = 1 * time.Second

// ScreenHintSignup asks the provider's hosted login page to open on its sign
// up screen.
const ScreenHintSignup = "signup"

// Request represents one login attempt for a user. Its State is passed to the
// provider and returned in the redirect callback, and the Nonce is embedded
// in the resulting id_token; the two are never equal. The PKCE Verifier
// never leaves the server until the code exchange.
type Request struct {
	state       string
	nonce       string
	verifier    string
	redirectURL string
	screenHint  string
	prompt      string
	uiLocales   []language.Tag
	expiration  time.Time
	nowFunc     func() time.Time
}

// NewRequest creates a new login Request which will expire after expireIn.
//
// Supported options: WithScreenHint, WithPrompt, WithUILocales, WithNow
func NewRequest(expireIn time.Duration, redirectURL string, opt ...Option) (*Request, error) {
	const op = "NewRequest"
	if redirectURL == "" {
		return nil, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	opts := getReqOpts(opt...)
	state, err := NewID("st")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
	}
	nonce, err := NewID("n")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's nonce: %w", op, err)
	}
	return &Request{
		state:       state,
		nonce:       nonce,
		verifier:    oauth2.GenerateVerifier(),
		redirectURL: redirectURL,
		screenHint:  opts.withScreenHint,
		prompt:      opts.withPrompt,
		uiLocales:   opts.withUILocales,
		expiration:  opts.withNowFunc().Add(expireIn),
		nowFunc:     opts.withNowFunc,
	}, nil
}

func (r *Request) State() string             { return r.state }
func (r *Request) Nonce() string             { return r.nonce }
func (r *Request) Verifier() string          { return r.verifier }
func (r *Request) RedirectURL() string       { return r.redirectURL }
func (r *Request) ScreenHint() string        { return r.screenHint }
func (r *Request) Prompt() string            { return r.prompt }
func (r *Request) UILocales() []language.Tag { return r.uiLocales }
func (r *Request) Expiration() time.Time     { return r.expiration }

// IsExpired returns true if the request has expired. Supports the
// WithExpirySkew option and if none is provided it will use the
// DefaultExpirySkew.
func (r *Request) IsExpired(opt ...Option) bool {
	opts := getExpiredOpts(opt...)
	return r.expiration.Before(r.nowFunc().Add(opts.withExpirySkew))
}

type reqOptions struct {
	withScreenHint string
	withPrompt     string
	withUILocales  []language.Tag
	withNowFunc    func() time.Time
}

func reqDefaults() reqOptions {
	return reqOptions{
		withNowFunc: time.Now,
	}
}

func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

type expiredOptions struct {
	withExpirySkew time.Duration
}

func getExpiredOpts(opt ...Option) expiredOptions {
	opts := expiredOptions{withExpirySkew: DefaultExpirySkew}
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScreenHint provides an optional screen hint for the provider's hosted
// login page (see ScreenHintSignup).
func WithScreenHint(hint string) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withScreenHint = hint
		}
	}
}

// WithPrompt provides an optional oidc "prompt" value, ie: "login".
func WithPrompt(prompt string) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withPrompt = prompt
		}
	}
}

// WithUILocales provides optional end-user preferred languages for the
// provider's UI, in order of preference.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withUILocales = locales
		}
	}
}
