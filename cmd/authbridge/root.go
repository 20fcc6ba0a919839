// SPDX-License-Identifier: MPL-2.0

package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "authbridge",
		Short:         "Auth bridge for the time tracker host page",
		Long:          "authbridge serves the time tracker host page and binds its sign up, log in and log out entry points to an OIDC identity provider tenant.",
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}
