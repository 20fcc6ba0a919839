// SPDX-License-Identifier: MPL-2.0

package server

import (
	"github.com/hashicorp/go-hclog"
	"github.com/timetracker/authbridge/bridge"
)

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

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithClientFactory replaces the identity client factory, which defaults
// to bridge.IDPFactory configured from the Config.
func WithClientFactory(f bridge.ClientFactory) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok && f != nil {
			o.withClientFactory = f
		}
	}
}

type serverOptions struct {
	withLogger        hclog.Logger
	withClientFactory bridge.ClientFactory
}

func serverDefaults() serverOptions {
	return serverOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

func getServerOpts(opt ...Option) serverOptions {
	opts := serverDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
