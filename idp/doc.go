// SPDX-License-Identifier: MPL-2.0

/*
Package idp is the identity-provider client used by the auth bridge. It talks
to an OIDC provider identified by a tenant domain and a client id (Auth0 style
tenants are the primary target) using the authorization code flow with PKCE.

The protocol work is delegated to github.com/coreos/go-oidc/v3 and
golang.org/x/oauth2. This package adds the pieces a host page needs around
them: login attempts bound to a caller supplied Session, redirect callback
completion, the signed in user's profile and provider logout URLs.

	c, _ := idp.NewConfig("tenant.eu.auth0.com", "your_client_id")
	client, _ := idp.New(ctx, c)
	defer client.Done()

	loginURL, _ := client.LoginWithRedirect(ctx, sess, idp.LoginOptions{
		RedirectURI: "https://app.example.com",
		ScreenHint:  idp.ScreenHintSignup,
	})
*/
package idp
