// attach.go — `psat attach`: run the daemon and drive a Chrome over the
// DevTools protocol as the rich event source.
package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/cdp"
	"github.com/brennhill/psat-core/internal/config"
	"github.com/brennhill/psat-core/internal/util"
)

// cookieDumpInterval paces Network.getCookies polls of attached pages.
const cookieDumpInterval = 5 * time.Second

func newAttachCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach [url...]",
		Short: "Run the daemon with a Chrome driven over CDP",
		Long: "attach launches a local Chrome (or connects to --control-url), opens one tab per URL " +
			"and feeds its Network, Page, Audits and Target events into the capture core.",
		RunE: func(cmd *cobra.Command, urls []string) error {
			bindDaemonFlags(cmd, opts)
			_ = opts.v.BindPFlag(config.KeyChromeControlURL, cmd.Flags().Lookup("control-url"))
			_ = opts.v.BindPFlag(config.KeyChromeHeadless, cmd.Flags().Lookup("headless"))

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
			if !d.core.Settings().UseRichInstrumentation {
				log.Warn("rich instrumentation is off; browser events are ignored until it is enabled in settings")
			}

			att, err := cdp.Launch(cdp.BrowserConfig{
				ControlURL: cfg.Chrome.ControlURL,
				Headless:   cfg.Chrome.Headless,
			}, d.decoder, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := att.Close(); err != nil {
					log.Warn("close browser", zap.Error(err))
				}
			}()
			d.inst.set(att)

			for _, u := range urls {
				tabID, err := att.Open(ctx, d.core, u)
				if err != nil {
					log.Warn("open tab", zap.String("url", u), zap.Error(err))
					continue
				}
				log.Info("tab opened", zap.Int("tab_id", tabID), zap.String("url", u))
			}

			util.SafeGo(log, func() { pollCookies(ctx, att, log) })
			return d.run(ctx)
		},
	}
	addDaemonFlags(cmd)
	cmd.Flags().String("control-url", "", "DevTools WebSocket URL of a running Chrome (default: launch one)")
	cmd.Flags().Bool("headless", true, "launch Chrome headless")
	return cmd
}

// pollCookies feeds each open page's cookie jar to the core until ctx ends.
func pollCookies(ctx context.Context, att *cdp.RodAttacher, log *zap.Logger) {
	ticker := time.NewTicker(cookieDumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tabID := range att.Tabs() {
				if err := att.DumpCookies(ctx, tabID); err != nil {
					log.Debug("cookie dump", zap.Int("tab_id", tabID), zap.Error(err))
				}
			}
		}
	}
}
