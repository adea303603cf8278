// read.go — Client commands against a running daemon: tabs, snapshot,
// settings.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/brennhill/psat-core/cmd/psat/output"
	"github.com/brennhill/psat-core/internal/client"
	"github.com/brennhill/psat-core/internal/settings"
	"github.com/brennhill/psat-core/internal/types"
)

const clientTimeout = 10 * time.Second

type clientOptions struct {
	addr   string
	format string
}

func (c *clientOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.addr, "addr", "", "daemon address (default: listen address from config)")
	cmd.Flags().StringVar(&c.format, "format", "human", "output format: human, json, csv")
}

func (c *clientOptions) connect(opts *rootOptions) (*client.Client, error) {
	if c.addr != "" {
		return client.New(c.addr), nil
	}
	cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.Listen), nil
}

func newTabsCmd(opts *rootOptions) *cobra.Command {
	co := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "List tabs tracked by the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.GetFormatter(co.format)
			if err != nil {
				return err
			}
			cl, err := co.connect(opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
			defer cancel()

			list, err := cl.Tabs(ctx)
			if err != nil {
				return err
			}
			return f.Format(cmd.OutOrStdout(), tabsTable(list))
		},
	}
	co.register(cmd)
	return cmd
}

func tabsTable(list client.TabList) output.Table {
	t := output.Table{Columns: []string{"tab_id", "url", "state", "cookies", "dirty", "surfaces", "designated"}}
	for _, tab := range list.Tabs {
		var surfaces []string
		if tab.PopupOpen {
			surfaces = append(surfaces, "popup")
		}
		if tab.DevToolsOpen {
			surfaces = append(surfaces, "devtools")
		}
		dirty := make([]string, 0, len(types.AllCategories))
		for _, cat := range tab.Dirty.Dirty() {
			dirty = append(dirty, fmt.Sprintf("%s:%d", cat, tab.Dirty.Get(cat)))
		}
		t.Append(tab.TabID, tab.URL, tab.State, tab.CookieCount,
			strings.Join(dirty, " "), strings.Join(surfaces, " "), tab.TabID == list.Designated)
	}
	return t
}

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	co := &clientOptions{}
	var raw bool
	var category string
	cmd := &cobra.Command{
		Use:   "snapshot <tab-id>",
		Short: "Print a tab's cookies (or its full state with --raw)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tabID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid tab id %q", args[0])
			}
			cl, err := co.connect(opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
			defer cancel()

			var cats []types.Category
			for _, part := range strings.Split(category, ",") {
				if part = strings.TrimSpace(part); part != "" {
					cats = append(cats, types.Category(part))
				}
			}
			if !raw && len(cats) == 0 {
				cats = []types.Category{types.CategoryCookies}
			}
			snap, err := cl.Snapshot(ctx, tabID, cats...)
			if err != nil {
				return err
			}
			if raw {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			f, err := output.GetFormatter(co.format)
			if err != nil {
				return err
			}
			return f.Format(cmd.OutOrStdout(), cookieTable(snap))
		},
	}
	co.register(cmd)
	cmd.Flags().BoolVar(&raw, "raw", false, "print the snapshot as JSON")
	cmd.Flags().StringVar(&category, "category", "", "comma-separated categories: cookies, auctions, attribution, prebid")
	return cmd
}

func cookieTable(snap types.TabSnapshot) output.Table {
	t := output.Table{Columns: []string{"name", "domain", "path", "first_party", "blocked", "reasons", "frames"}}
	keys := make([]string, 0, len(snap.Cookies))
	for k := range snap.Cookies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c := snap.Cookies[k]
		t.Append(c.Parsed.Name, c.Parsed.Domain, c.Parsed.Path, c.IsFirstParty, c.IsBlocked,
			strings.Join(c.BlockedReasons, " "), strings.Join(c.FrameIDs, " "))
	}
	return t
}

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	co := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the daemon's persisted settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := co.connect(opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
			defer cancel()
			s, err := cl.Settings(ctx)
			if err != nil {
				return err
			}
			return printSettings(cmd, co.format, s)
		},
	}
	co.register(cmd)

	var mode string
	var rich bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Replace the settings; any change re-initializes all tab state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := co.connect(opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
			defer cancel()

			next, err := cl.Settings(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("mode") {
				next.TabCapacityMode = mode
			}
			if cmd.Flags().Changed("rich") {
				next.UseRichInstrumentation = rich
			}
			if err := next.Validate(); err != nil {
				return err
			}
			reinit, err := cl.PutSettings(ctx, next)
			if err != nil {
				return err
			}
			if reinit {
				fmt.Fprintln(cmd.ErrOrStderr(), "settings changed; tab state re-initialized")
			}
			return printSettings(cmd, co.format, next)
		},
	}
	set.Flags().StringVar(&mode, "mode", "", "tab capacity mode: single or unlimited")
	set.Flags().BoolVar(&rich, "rich", false, "use rich (debugger protocol) instrumentation")
	set.Flags().StringVar(&co.addr, "addr", "", "daemon address (default: listen address from config)")
	set.Flags().StringVar(&co.format, "format", "human", "output format: human, json, csv")
	cmd.AddCommand(set)
	return cmd
}

func printSettings(cmd *cobra.Command, format string, s settings.Settings) error {
	f, err := output.GetFormatter(format)
	if err != nil {
		return err
	}
	t := output.Table{Columns: []string{"tab_capacity_mode", "use_rich_instrumentation"}}
	t.Append(s.TabCapacityMode, s.UseRichInstrumentation)
	return f.Format(cmd.OutOrStdout(), t)
}
