// SPDX-License-Identifier: MPL-2.0

/*
Package bridge binds a host page's four authentication entry points to an
identity-provider client.

	init auth   -> Bridge.InitAuth
	sign up     -> Bridge.BeginSignUp
	log in      -> Bridge.BeginLogIn
	log out     -> Bridge.LogOut

A Bridge owns the single identity client handle. The handle is created by the
first InitAuth from its domain and client id and is reused afterwards; every
other entry point fails with ErrNotInitialized until then.

Each call operates on a Page: the URL a browser requested plus that
browser's session. When the URL is the return leg of a redirect login (it
has both a non-empty "code" and "state" query parameter), InitAuth completes
the login before checking whether the browser is authenticated.

Every failure is an *Error carrying a Kind, so callers can tell a
configuration problem from an unreachable provider or a user who refused
consent:

	u, err := b.InitAuth(ctx, domain, clientID, page)
	switch {
	case errors.Is(err, bridge.ErrConsentDenied):
		// show the signed out page with a notice
	case err != nil:
		// KindOf(err) picks the response
	case u == nil:
		// signed out
	}
*/
package bridge
