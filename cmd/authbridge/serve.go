// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/timetracker/authbridge/assets"
	"github.com/timetracker/authbridge/idp"
	"github.com/timetracker/authbridge/server"
	"github.com/timetracker/authbridge/session"
)

// envPrefix prefixes the environment variable of every flag, ie:
// AUTHBRIDGE_CLIENT_ID for --client-id.
const envPrefix = "AUTHBRIDGE"

func newServeCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the host page",
		Long: `Serve the host page and its auth routes.

Every flag can also be set with an AUTHBRIDGE_ environment variable or in
the --config file. Flags win over the environment, which wins over the file.

Examples:
  # Auth0 tenant, module built into ./dist/pkg
  authbridge serve --domain tenant.eu.auth0.com --client-id abc123

  # Behind a TLS terminating proxy
  AUTHBRIDGE_TRUST_PROXY=true authbridge serve --config authbridge.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := loadConfigFile(v); err != nil {
				return err
			}
			logger := newLogger(v, cmd.ErrOrStderr())
			c, err := serverConfig(v)
			if err != nil {
				return err
			}
			srv, err := server.New(c, server.WithLogger(logger))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
	addServeFlags(cmd.Flags())
	bindFlags(v, cmd.Flags())
	return cmd
}

func addServeFlags(f *pflag.FlagSet) {
	f.String("config", "", "optional config file (yaml, json or toml)")
	f.String("domain", "", "identity provider tenant domain, ie: tenant.eu.auth0.com")
	f.String("client-id", "", "OAuth client id of the host page")
	f.String("client-secret", "", "OAuth client secret, for confidential clients only")
	f.String("audience", "", "API audience access tokens are requested for")
	f.StringSlice("signing-algs", []string{string(idp.RS256)}, "accepted id_token signing algorithms")
	f.String("provider-ca", "", "PEM file of a CA to trust for the provider")
	f.String("address", server.DefaultAddress, "listen address")
	f.String("asset-root", server.DefaultAssetRoot, "directory of the static files")
	f.String("asset-path", assets.DefaultModulePath, "URL path of the WebAssembly module")
	f.Duration("session-ttl", session.DefaultTTL, "how long an idle browser session is kept")
	f.Duration("login-ttl", idp.DefaultRequestTTL, "how long a login attempt may take")
	f.Bool("trust-proxy", false, "derive the page URL from X-Forwarded-Proto and X-Forwarded-Host")
	f.String("log-level", "info", "log level: trace, debug, info, warn or error")
	f.Bool("log-json", false, "log as JSON")
}

// bindFlags makes every flag readable through v, falling back to its
// environment variable.
func bindFlags(v *viper.Viper, f *pflag.FlagSet) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	f.VisitAll(func(fl *pflag.Flag) {
		// BindPFlag only fails for a nil flag
		_ = v.BindPFlag(fl.Name, fl)
	})
}

func loadConfigFile(v *viper.Viper) error {
	const op = "loadConfigFile"
	file := v.GetString("config")
	if file == "" {
		return nil
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%s: unable to read %s: %w", op, file, err)
	}
	return nil
}

func newLogger(v *viper.Viper, out io.Writer) hclog.Logger {
	level := hclog.LevelFromString(v.GetString("log-level"))
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "authbridge",
		Level:      level,
		Output:     out,
		JSONFormat: v.GetBool("log-json"),
	})
}

func serverConfig(v *viper.Viper) (*server.Config, error) {
	const op = "serverConfig"
	c := server.NewConfig(v.GetString("domain"), v.GetString("client-id"))
	c.ClientSecret = idp.ClientSecret(v.GetString("client-secret"))
	c.Audience = v.GetString("audience")
	c.Address = v.GetString("address")
	c.AssetRoot = v.GetString("asset-root")
	c.ModulePath = v.GetString("asset-path")
	c.SessionTTL = v.GetDuration("session-ttl")
	c.LoginTTL = v.GetDuration("login-ttl")
	c.TrustProxy = v.GetBool("trust-proxy")
	c.SigningAlgs = nil
	for _, a := range v.GetStringSlice("signing-algs") {
		c.SigningAlgs = append(c.SigningAlgs, idp.Alg(strings.TrimSpace(a)))
	}
	if file := v.GetString("provider-ca"); file != "" {
		pem, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read provider CA: %w", op, err)
		}
		c.ProviderCA = string(pem)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}
