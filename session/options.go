// SPDX-License-Identifier: MPL-2.0

package session

import "time"

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && now != nil {
			o.withNowFunc = now
		}
	}
}

// WithTTL provides how long a session may stay idle before it's forgotten.
func WithTTL(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && d > 0 {
			o.withTTL = d
		}
	}
}

// WithMaxPendingRequests provides how many login attempts a session keeps
// before the oldest is dropped.
func WithMaxPendingRequests(n int) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && n > 0 {
			o.withMaxPending = n
		}
	}
}
