// SPDX-License-Identifier: MPL-2.0

/*
Package server is the HTTP surface of the auth bridge. It serves the host
page and binds the bridge's entry points to routes:

	GET /              host page; completes a redirect login, then shows
	                   the user (or the signed out view)
	GET /auth/user     the signed in user as JSON, null when signed out
	GET /auth/token    the access token as JSON, 401 when signed out
	GET /auth/signup   redirect to the provider's sign up screen
	GET /auth/login    redirect to the provider's login screen
	GET /auth/logout   sign out and redirect to the provider's logout
	GET /pkg/*         static files, including the WebAssembly module
	GET /healthz       200 once the module is loaded, 503 before

Bridge failures map to statuses by kind: configuration 500, network 502,
consent denied and not authenticated 401, invalid callback 400, not
initialized 503.
*/
package server
