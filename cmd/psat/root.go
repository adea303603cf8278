// root.go — cobra command tree and shared configuration loading.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brennhill/psat-core/internal/config"
)

type rootOptions struct {
	configFile string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "psat",
		Short:         "Privacy-sandbox event correlation daemon",
		Long:          "psat correlates cookies, ad-auction and attribution events from the browser into per-tab state and pushes it to UI surfaces.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is $STATE_DIR/psat.yaml)")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = opts.v.BindPFlag(config.KeyLogLevel, cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(
		newServeCmd(opts),
		newAttachCmd(opts),
		newTabsCmd(opts),
		newSnapshotCmd(opts),
		newSettingsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load resolves configuration after flags are parsed.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.v, o.configFile)
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "psat %s\n", version)
		},
	}
}
