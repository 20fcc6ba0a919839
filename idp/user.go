// SPDX-License-Identifier: MPL-2.0

package idp

import "strconv"

// UserProfile is the signed in user as reported by the provider's id_token
// and userinfo endpoint.
type UserProfile struct {
	Subject       string `json:"sub"`
	Name          string `json:"name,omitempty"`
	Nickname      string `json:"nickname,omitempty"`
	Username      string `json:"username,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Picture       string `json:"picture,omitempty"`

	// Claims holds every claim the profile was built from.
	Claims map[string]interface{} `json:"-"`
}

// NewUserProfile builds a profile from standard oidc claims. Username falls
// back from preferred_username to nickname, then to the email address.
func NewUserProfile(claims map[string]interface{}) *UserProfile {
	u := &UserProfile{
		Subject:       stringClaim(claims, "sub"),
		Name:          stringClaim(claims, "name"),
		Nickname:      stringClaim(claims, "nickname"),
		Username:      stringClaim(claims, "preferred_username"),
		Email:         stringClaim(claims, "email"),
		EmailVerified: boolClaim(claims, "email_verified"),
		Picture:       stringClaim(claims, "picture"),
		Claims:        claims,
	}
	switch {
	case u.Username != "":
	case u.Nickname != "":
		u.Username = u.Nickname
	default:
		u.Username = u.Email
	}
	return u
}

func stringClaim(claims map[string]interface{}, k string) string {
	if s, ok := claims[k].(string); ok {
		return s
	}
	return ""
}

// boolClaim accepts both JSON booleans and "true"/"false" strings; some
// providers send email_verified as a string.
func boolClaim(claims map[string]interface{}, k string) bool {
	switch v := claims[k].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}
