// SPDX-License-Identifier: MPL-2.0

// Command authbridge serves a host page signed in through an OIDC identity
// provider tenant, together with the page's WebAssembly module.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
