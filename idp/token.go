// SPDX-License-Identifier: MPL-2.0

package idp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// expirySkew is subtracted from a token's expiry when checking validity, so
// a token isn't handed out moments before the API would refuse it.
const expirySkew = 10 * time.Second

// IDToken is an oidc id_token.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string { return RedactedIDToken }

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedIDToken) }

// Claims retrieves the IDToken claims without verifying the signature.
// Only use it on tokens verified by Client.VerifyIDToken.
func (t IDToken) Claims(claims interface{}) error {
	const op = "IDToken.Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	return UnmarshalClaims(string(t), claims)
}

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth
// access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

func (t AccessToken) String() string               { return RedactedAccessToken }
func (t AccessToken) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedAccessToken) }

// RefreshToken is an oauth refresh_token.
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth
// refresh_token.
const RedactedRefreshToken = "[REDACTED: refresh_token]"

func (t RefreshToken) String() string               { return RedactedRefreshToken }
func (t RefreshToken) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedRefreshToken) }

// Token is the result of a successful redirect callback.
type Token struct {
	AccessToken  AccessToken
	RefreshToken RefreshToken
	IDToken      IDToken
	Expiry       time.Time

	nowFunc func() time.Time
}

// Expired reports whether the token is expired, allowing for expirySkew. A
// token without an expiry never expires.
func (t *Token) Expired() bool {
	if t.Expiry.IsZero() {
		return false
	}
	now := time.Now
	if t.nowFunc != nil {
		now = t.nowFunc
	}
	return t.Expiry.Round(0).Before(now().Add(expirySkew))
}

// Valid reports whether the token is usable: non-nil, with an access token
// and not expired.
func (t *Token) Valid() bool {
	if t == nil {
		return false
	}
	if t.AccessToken == "" {
		return false
	}
	return !t.Expired()
}

// UnmarshalClaims will retrieve the claims from the provided raw JWT token
// without verifying its signature.
func UnmarshalClaims(rawToken string, claims interface{}) error {
	const op = "UnmarshalClaims"
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%s: malformed jwt, expected 3 parts got %d: %w", op, len(parts), ErrMalformedToken)
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("%s: malformed jwt claims: %w", op, ErrMalformedToken)
	}
	if err := json.Unmarshal(raw, claims); err != nil {
		return fmt.Errorf("%s: unable to unmarshal jwt claims: %w", op, ErrMalformedToken)
	}
	return nil
}
