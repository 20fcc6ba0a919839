// SPDX-License-Identifier: MPL-2.0

/*
Package assets serves the host page's static files, including the
WebAssembly module the page boots with.

A Loader reads the module once at startup, checks it's a WebAssembly binary
and then serves it from memory. The load is an independent startup task: it
isn't ordered with the auth bridge, and until it completes (or when it
fails) the module answers 503 while every other static file is served from
disk.
*/
package assets
