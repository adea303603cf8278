// serve.go — `psat serve`: run the daemon for the browser extension.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/config"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindDaemonFlags(cmd, opts)
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signalContext()
			defer stop()

			d, err := newDaemon(ctx, cfg, log)
			if err != nil {
				log.Error("daemon setup failed", zap.Error(err))
				return err
			}
			return d.run(ctx)
		},
	}
	addDaemonFlags(cmd)
	return cmd
}

func addDaemonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("listen", "", "address to listen on (default 127.0.0.1:7891)")
	f.String("cookie-db", "", "cookie classification dictionary (JSON)")
	f.String("settings-file", "", "persisted settings file (default $STATE_DIR/settings.yaml)")
}

// bindDaemonFlags binds the running command's flags. Only the command that
// runs binds, so serve and attach can share flag names.
func bindDaemonFlags(cmd *cobra.Command, opts *rootOptions) {
	f := cmd.Flags()
	_ = opts.v.BindPFlag(config.KeyListen, f.Lookup("listen"))
	_ = opts.v.BindPFlag(config.KeyCookieDB, f.Lookup("cookie-db"))
	_ = opts.v.BindPFlag(config.KeySettingsFile, f.Lookup("settings-file"))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
