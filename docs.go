// SPDX-License-Identifier: MPL-2.0

// authbridge serves a host page whose sign up, log in and log out entry
// points are backed by a hosted identity provider (Auth0 or any other OIDC
// provider), and loads the page's WebAssembly module alongside.
//
// Packages:
//
//	idp     identity-provider client: discovery, PKCE redirect login, callback
//	        handling, user profile, tokens and logout
//	session per browser session state, its in memory store and cookie
//	bridge  the four entry points (init auth, sign up, log in, log out) over
//	        one lazily created identity client, with typed errors
//	assets  WebAssembly module loader and static file handler
//	server  http routes, startup and graceful shutdown
//
// The authbridge command in cmd/authbridge runs the server.
package authbridge
