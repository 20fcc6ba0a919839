// SPDX-License-Identifier: MPL-2.0

package bridge

import "net/url"

// IsRedirectCallback reports whether u is the return leg of a redirect
// login: its query has both a "code" and a "state" parameter with non-empty
// values. Parameters are matched exactly, so "?foo=code=&bar=state=" is not a
// callback.
func IsRedirectCallback(u *url.URL) bool {
	if u == nil {
		return false
	}
	q := u.Query()
	return q.Get("code") != "" && q.Get("state") != ""
}

// IsErrorCallback reports whether u is the return leg of a redirect login
// that the provider refused: its query has both an "error" and a "state"
// parameter.
func IsErrorCallback(u *url.URL) bool {
	if u == nil {
		return false
	}
	q := u.Query()
	return q.Get("error") != "" && q.Get("state") != ""
}

// Origin returns the scheme and host of u, ie: "https://app.example.com".
// It's where the provider sends the browser back to after login and logout.
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	o := url.URL{Scheme: u.Scheme, Host: u.Host}
	return o.String()
}
