// SPDX-License-Identifier: MPL-2.0

package idp

// Session is the per browser state the Client reads and writes: pending
// login Requests and the outcome of a completed login. Implementations must
// be concurrently safe, since a browser may issue overlapping requests.
type Session interface {
	// AddRequest records a pending login attempt keyed by its State.
	AddRequest(*Request)

	// TakeRequest returns and removes the pending login attempt for state.
	// A Request can only be taken once.
	TakeRequest(state string) (*Request, bool)

	SetToken(*Token)
	Token() *Token
	SetUser(*UserProfile)
	User() *UserProfile

	// Clear forgets the token and user, ie: at logout.
	Clear()
}
