// SPDX-License-Identifier: MPL-2.0

/*
Package session holds the per browser state of the auth bridge: the pending
login attempts started by a browser and the outcome of its completed login.

A Session implements idp.Session, so it can be handed directly to an
idp.Client. Sessions live in a Store; MemoryStore keeps them in process
memory and forgets them after an idle TTL. Browsers are bound to their
Session by the CookieName cookie, see FromRequest and WriteCookie.

Sessions are not persisted: a restart signs every browser out.
*/
package session
