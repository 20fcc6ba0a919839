// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/timetracker/authbridge/idp"
	"golang.org/x/oauth2"
)

// Kind classifies a bridge failure by what the host can do about it.
type Kind int

const (
	// KindUnknown is a failure the bridge could not classify.
	KindUnknown Kind = iota

	// KindConfiguration means the domain, client id or page is wrong.
	KindConfiguration

	// KindNetwork means the provider could not be reached or failed to
	// answer.
	KindNetwork

	// KindConsentDenied means the user, or the provider on their behalf,
	// refused the login.
	KindConsentDenied

	// KindNotInitialized means an entry point was used before InitAuth.
	KindNotInitialized

	// KindInvalidCallback means the redirect callback didn't match a login
	// started by this browser: unknown, replayed or expired state, or a
	// code the provider refused.
	KindInvalidCallback

	// KindNotAuthenticated means the browser has no valid login.
	KindNotAuthenticated
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNetwork:
		return "network"
	case KindConsentDenied:
		return "consent denied"
	case KindNotInitialized:
		return "not initialized"
	case KindInvalidCallback:
		return "invalid callback"
	case KindNotAuthenticated:
		return "not authenticated"
	default:
		return "unknown"
	}
}

// Sentinels matching every *Error of the corresponding Kind with errors.Is.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrNetwork          = errors.New("network error")
	ErrConsentDenied    = errors.New("consent denied")
	ErrNotInitialized   = errors.New("auth not initialized")
	ErrInvalidCallback  = errors.New("invalid redirect callback")
	ErrNotAuthenticated = errors.New("not authenticated")
)

var kindSentinels = map[Kind]error{
	KindConfiguration:    ErrConfiguration,
	KindNetwork:          ErrNetwork,
	KindConsentDenied:    ErrConsentDenied,
	KindNotInitialized:   ErrNotInitialized,
	KindInvalidCallback:  ErrInvalidCallback,
	KindNotAuthenticated: ErrNotAuthenticated,
}

// Error is the failure returned by every Bridge operation.
type Error struct {
	// Op is the operation that failed, ie: "Bridge.InitAuth".
	Op string

	Kind Kind

	// Msg is an optional description of the failure.
	Msg string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is matches the sentinel of the error's Kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

func newError(op string, k Kind, msg string, wrapped error) *Error {
	return &Error{Op: op, Kind: k, Msg: msg, Wrapped: wrapped}
}

// wrapError classifies err and wraps it in an *Error for op. A bridge
// *Error is returned as is.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if bErr, ok := err.(*Error); ok {
		return bErr
	}
	return newError(op, KindOf(err), "", err)
}

// KindOf classifies any error. Errors that aren't a bridge *Error are
// classified by the identity client failure they wrap.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var bErr *Error
	if errors.As(err, &bErr) {
		return bErr.Kind
	}
	switch {
	case errors.Is(err, idp.ErrAccessDenied):
		return KindConsentDenied
	case errors.Is(err, idp.ErrNotAuthenticated):
		return KindNotAuthenticated
	case errors.Is(err, idp.ErrNotFound),
		errors.Is(err, idp.ErrExpiredRequest),
		errors.Is(err, idp.ErrInvalidResponse),
		errors.Is(err, idp.ErrInvalidNonce),
		errors.Is(err, idp.ErrIDTokenVerificationFailed):
		return KindInvalidCallback
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant", "invalid_request":
			return KindInvalidCallback
		case "invalid_client", "unauthorized_client":
			return KindConfiguration
		}
	}

	switch {
	case errors.Is(err, idp.ErrInvalidParameter),
		errors.Is(err, idp.ErrNilParameter),
		errors.Is(err, idp.ErrInvalidCACert),
		errors.Is(err, idp.ErrInvalidIssuer):
		return KindConfiguration
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return KindNetwork
	}
	switch {
	case errors.Is(err, idp.ErrDiscoveryFailed),
		errors.Is(err, idp.ErrExchangeFailed),
		errors.Is(err, idp.ErrUserInfoFailed):
		return KindNetwork
	}
	return KindUnknown
}

// checkPage fails a Page without a URL or Session.
func checkPage(op string, p Page) error {
	switch {
	case p.URL == nil:
		return newError(op, KindConfiguration, "page has no URL", idp.ErrNilParameter)
	case p.Session == nil:
		return newError(op, KindConfiguration, "page has no session", idp.ErrNilParameter)
	}
	return nil
}
