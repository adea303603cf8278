package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/psat-core/internal/capture"
	"github.com/brennhill/psat-core/internal/client"
	"github.com/brennhill/psat-core/internal/push"
	"github.com/brennhill/psat-core/internal/server"
	"github.com/brennhill/psat-core/internal/settings"
	"github.com/brennhill/psat-core/internal/types"
)

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "psat "+version+"\n", out.String())
}

func TestCommandTree(t *testing.T) {
	t.Parallel()

	names := map[string]bool{}
	for _, c := range newRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "attach", "tabs", "snapshot", "settings", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestTabsTable(t *testing.T) {
	t.Parallel()

	var dirty types.DirtyCounters
	dirty.Add(types.CategoryCookies, 3)
	tbl := tabsTable(client.TabList{
		Designated: 2,
		Tabs: []types.TabSummary{
			{TabID: 2, URL: "https://a.test/", State: "active", CookieCount: 3, Dirty: dirty, PopupOpen: true},
		},
	})
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []string{"2", "https://a.test/", "active", "3", "cookies:3", "popup", "true"}, tbl.Rows[0])
}

func TestCookieTableSorted(t *testing.T) {
	t.Parallel()

	snap := types.TabSnapshot{Cookies: map[string]types.Cookie{
		"b;x.test;/": {Parsed: types.ParsedCookie{Name: "b", Domain: "x.test", Path: "/"}, FrameIDs: []string{"0"}},
		"a;x.test;/": {Parsed: types.ParsedCookie{Name: "a", Domain: "x.test", Path: "/"}, IsBlocked: true,
			BlockedReasons: []string{"ThirdPartyPhaseout"}},
	}}
	tbl := cookieTable(snap)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "a", tbl.Rows[0][0])
	assert.Equal(t, "ThirdPartyPhaseout", tbl.Rows[0][5])
	assert.Equal(t, "0", tbl.Rows[1][6])
}

func TestTabsCommandAgainstDaemon(t *testing.T) {
	t.Parallel()

	core, err := capture.New(capture.Config{Settings: settings.Settings{TabCapacityMode: settings.ModeUnlimited}})
	require.NoError(t, err)
	defer core.Close()
	require.NoError(t, core.OnTabCreated(9, "https://a.test/"))

	srv := server.New(server.Deps{Capture: core, Dispatcher: push.NewDispatcher(core, push.Config{})})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"tabs", "--addr", ts.URL, "--format", "csv"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "9,https://a.test/,"))
}
