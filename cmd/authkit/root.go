package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chimerakang/authkit-go/internal/app"
	"github.com/chimerakang/authkit-go/internal/config"
	"github.com/chimerakang/authkit-go/internal/logger"
)

// cli carries state shared by every command of one invocation.
type cli struct {
	configPath string
	appOpts    []app.Option

	cfg *config.Config
	app *app.App
	zap *zap.Logger
}

func newRootCmd(opts ...app.Option) *cobra.Command {
	c := &cli{appOpts: opts}

	root := &cobra.Command{
		Use:   "authkit",
		Short: "Manage an authenticated session from the command line",
		Long: `authkit signs in against an AWS Cognito user pool or an OpenID Connect provider,
keeps the session encrypted on disk (or in sqlite or redis) and refreshes it on demand.

Configuration is read from authkit.yaml (working directory or the user config
directory), AUTHKIT_* environment variables and flags.

Examples:
  authkit signin --email user@example.com
  authkit whoami
  authkit token | xargs -I{} curl -H "Authorization: Bearer {}" https://api.example.com/me
  authkit signout`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default authkit.yaml)")
	flags.String("provider", "", "identity provider (cognito|oidc)")
	flags.String("store.driver", "", "session store (file|sqlite|redis|memory)")
	flags.String("logging.level", "", "log level (debug|info|warn|error)")

	root.AddCommand(
		c.signInCmd(),
		c.signOutCmd(),
		c.whoAmICmd(),
		c.tokenCmd(),
		c.refreshCmd(),
		c.signUpCmd(),
		c.confirmCmd(),
		c.resendCmd(),
		c.forgotCmd(),
		c.resetCmd(),
		c.passwdCmd(),
		c.configCmd(),
		versionCmd(),
	)
	return root
}

// setup loads configuration and, for commands that need it, the session stack.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	c.cfg = cfg

	if cmd.Annotations["session"] != "true" {
		return nil
	}

	z, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	c.zap = z

	opts := append([]app.Option{app.WithLogger(logger.Slog(z))}, c.appOpts...)
	a, err := app.New(cmd.Context(), cfg, opts...)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) teardown() error {
	var err error
	if c.app != nil {
		err = c.app.Close()
	}
	if c.zap != nil {
		_ = c.zap.Sync()
	}
	return err
}

// needsSession marks cmd as requiring the wired session stack, which is torn
// down when the command returns, failed or not.
func (c *cli) needsSession(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations["session"] = "true"

	run := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if terr := c.teardown(); err == nil {
				err = terr
			}
		}()
		return run(cmd, args)
	}
	return cmd
}
