// SPDX-License-Identifier: MPL-2.0

package idp

import (
	"errors"
)

var (
	ErrInvalidParameter          = errors.New("invalid parameter")
	ErrNilParameter              = errors.New("nil parameter")
	ErrInvalidCACert             = errors.New("invalid CA certificate")
	ErrInvalidIssuer             = errors.New("invalid issuer")
	ErrIDGeneratorFailed         = errors.New("id generation failed")
	ErrDiscoveryFailed           = errors.New("provider discovery failed")
	ErrExpiredRequest            = errors.New("login request is expired")
	ErrInvalidResponse           = errors.New("invalid authentication response")
	ErrExchangeFailed            = errors.New("auth code exchange failed")
	ErrMissingIDToken            = errors.New("id_token is missing")
	ErrIDTokenVerificationFailed = errors.New("id_token verification failed")
	ErrInvalidNonce              = errors.New("invalid nonce")
	ErrMalformedToken            = errors.New("token malformed")
	ErrNotFound                  = errors.New("not found")
	ErrLoginFailed               = errors.New("login failed")
	ErrAccessDenied              = errors.New("access denied")
	ErrUserInfoFailed            = errors.New("user info failed")
	ErrNotAuthenticated          = errors.New("not authenticated")
)

// consentErrorCodes are the authentication error response codes that mean
// the user (or the provider on the user's behalf) refused the login.
// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthError
var consentErrorCodes = map[string]struct{}{
	"access_denied":              {},
	"consent_required":           {},
	"interaction_required":       {},
	"login_required":             {},
	"account_selection_required": {},
	"unauthorized":               {},
}

// CallbackError is an OAuth2 error response delivered to the redirect
// callback instead of an authorization code.
type CallbackError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

// NewCallbackError returns a *CallbackError read from the callback's query
// parameters, or nil when the query carries no error.
func NewCallbackError(query map[string][]string) *CallbackError {
	get := func(k string) string {
		if v := query[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	if get("error") == "" {
		return nil
	}
	return &CallbackError{
		Code:        get("error"),
		Description: get("error_description"),
		URI:         get("error_uri"),
	}
}

func (e *CallbackError) Error() string {
	if e.Description == "" {
		return "provider returned " + e.Code
	}
	return "provider returned " + e.Code + ": " + e.Description
}

// Unwrap classifies the provider's error code: refusals unwrap to
// ErrAccessDenied, everything else to ErrLoginFailed.
func (e *CallbackError) Unwrap() error {
	if _, ok := consentErrorCodes[e.Code]; ok {
		return ErrAccessDenied
	}
	return ErrLoginFailed
}
