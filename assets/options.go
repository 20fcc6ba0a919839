// SPDX-License-Identifier: MPL-2.0

package assets

import "github.com/hashicorp/go-hclog"

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

// WithModulePath provides the URL path of the module, relative to the
// loader's root on disk.
func WithModulePath(p string) Option {
	return func(o interface{}) {
		if o, ok := o.(*loaderOptions); ok && p != "" {
			o.withModulePath = p
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*loaderOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

type loaderOptions struct {
	withModulePath string
	withLogger     hclog.Logger
}

func loaderDefaults() loaderOptions {
	return loaderOptions{
		withModulePath: DefaultModulePath,
		withLogger:     hclog.NewNullLogger(),
	}
}

func getLoaderOpts(opt ...Option) loaderOptions {
	opts := loaderDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
