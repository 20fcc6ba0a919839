// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// CookieName is the name of the cookie binding a browser to its Session.
const CookieName = "authbridge_session"

// FromRequest returns the Session bound to the request's cookie. When the
// request carries no cookie, or its session is unknown or expired, a new
// Session is created and created is true; the caller must then WriteCookie.
func FromRequest(ctx context.Context, store Store, r *http.Request) (s *Session, created bool, err error) {
	const op = "session.FromRequest"
	if store == nil {
		return nil, false, fmt.Errorf("%s: store is nil: %w", op, ErrNilParameter)
	}
	if r == nil {
		return nil, false, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		s, err := store.Get(ctx, c.Value)
		switch {
		case err == nil:
			return s, false, nil
		case !errors.Is(err, ErrNotFound):
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}
	}
	s, err = store.New(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return s, true, nil
}

// WriteCookie binds the browser to s. The cookie is HttpOnly and SameSite
// Lax, so it survives the provider's top level redirect back to the page.
// secure should be true whenever the page is served over https.
func WriteCookie(w http.ResponseWriter, s *Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID(),
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the browser's session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
