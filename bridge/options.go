// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"time"

	"github.com/hashicorp/go-hclog"
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
		if o, ok := o.(*bridgeOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithInitTimeout provides how long creating the identity client may take.
func WithInitTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*bridgeOptions); ok && d > 0 {
			o.withInitTimeout = d
		}
	}
}

type bridgeOptions struct {
	withLogger      hclog.Logger
	withInitTimeout time.Duration
}

func bridgeDefaults() bridgeOptions {
	return bridgeOptions{
		withLogger:      hclog.NewNullLogger(),
		withInitTimeout: DefaultInitTimeout,
	}
}

func getBridgeOpts(opt ...Option) bridgeOptions {
	opts := bridgeDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
