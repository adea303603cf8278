package webrequest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/psat-core/internal/capture"
	"github.com/brennhill/psat-core/internal/settings"
	"github.com/brennhill/psat-core/internal/types"
)

func newCore(t *testing.T, mode string) *capture.Capture {
	t.Helper()
	c, err := capture.New(capture.Config{Settings: settings.Settings{TabCapacityMode: mode}})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func applyAll(t *testing.T, sink Sink, raw string) {
	t.Helper()
	envs, err := Decode([]byte(raw))
	require.NoError(t, err)
	for _, env := range envs {
		require.NoError(t, Apply(sink, env), env.Type)
	}
}

func TestDecodeSingleAndBatch(t *testing.T) {
	t.Parallel()

	one, err := Decode([]byte(` {"type":"tab-created","tabId":3,"url":"https://a.test/"} `))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, 3, one[0].TabID)

	many, err := Decode([]byte(`[{"type":"tab-removed","tabId":1},{"type":"tab-removed","tabId":2}]`))
	require.NoError(t, err)
	assert.Len(t, many, 2)

	none, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = Decode([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestFrameIDs(t *testing.T) {
	t.Parallel()

	envs, err := Decode([]byte(`[
		{"type":"frame-navigated","tabId":1,"frameId":0,"parentFrameId":-1},
		{"type":"frame-navigated","tabId":1,"frameId":12,"parentFrameId":0}]`))
	require.NoError(t, err)
	assert.Equal(t, "0", envs[0].frameID())
	assert.Equal(t, "", envs[0].parentFrameID())
	assert.True(t, envs[0].isTopLevel())
	assert.Equal(t, "12", envs[1].frameID())
	assert.Equal(t, "0", envs[1].parentFrameID())
	assert.False(t, envs[1].isTopLevel())
}

func TestApplyLightweightFlow(t *testing.T) {
	t.Parallel()

	c := newCore(t, settings.ModeUnlimited)
	applyAll(t, c, `[
		{"type":"tab-created","tabId":4,"url":"https://news.test/"},
		{"type":"navigation-started","tabId":4,"frameId":0,"url":"https://news.test/story"},
		{"type":"frame-navigated","tabId":4,"frameId":0,"parentFrameId":-1,"url":"https://news.test/story"},
		{"type":"frame-navigated","tabId":4,"frameId":7,"parentFrameId":0,"url":"https://ads.test/slot"},
		{"type":"headers-received","tabId":4,"frameId":7,"parentFrameId":0,"requestId":"55",
		 "url":"https://ads.test/slot","timeStamp":1700000000000,
		 "responseHeaders":[{"name":"Set-Cookie","value":"uid=1; Domain=ads.test; Path=/"},{"name":"Content-Type","value":"text/html"}]},
		{"type":"before-send-headers","tabId":4,"frameId":0,"parentFrameId":-1,"requestId":"56",
		 "url":"https://news.test/api","requestHeaders":[{"name":"Cookie","value":"sess=abc"}]},
		{"type":"js-cookies","tabId":4,"frameId":0,"url":"https://news.test/story","cookies":["pref=1"]}
	]`)

	snap, err := c.Snapshot(4, types.CategoryCookies)
	require.NoError(t, err)
	assert.Equal(t, "https://news.test/story", snap.URL)
	assert.Len(t, snap.Cookies, 3)

	var uid types.Cookie
	for _, ck := range snap.Cookies {
		if ck.Parsed.Name == "uid" {
			uid = ck
		}
	}
	assert.False(t, uid.IsFirstParty)
	assert.Equal(t, []string{"7"}, uid.FrameIDs)
	require.Len(t, uid.NetworkEvents.ResponseEvents, 1)
	assert.InDelta(t, 1700000000.0, uid.NetworkEvents.ResponseEvents[0].Timestamp, 0.001)
}

func TestApplySubframeNavigationIsNotTopLevel(t *testing.T) {
	t.Parallel()

	c := newCore(t, settings.ModeUnlimited)
	applyAll(t, c, `[
		{"type":"js-cookies","tabId":1,"frameId":0,"url":"https://a.test/","cookies":["k=v"]},
		{"type":"navigation-started","tabId":1,"frameId":3,"url":"https://frame.test/"}
	]`)
	snap, err := c.Snapshot(1, types.CategoryCookies)
	require.NoError(t, err)
	assert.Len(t, snap.Cookies, 1, "subframe navigation keeps page state")
}

func TestApplySwitchTabAndRemoval(t *testing.T) {
	t.Parallel()

	c := newCore(t, settings.ModeSingle)
	applyAll(t, c, `{"type":"tab-created","tabId":1,"url":"https://a.test/"}`)

	envs, err := Decode([]byte(`{"type":"tab-created","tabId":2}`))
	require.NoError(t, err)
	assert.ErrorIs(t, Apply(c, envs[0]), capture.ErrTabRejected)

	applyAll(t, c, `[{"type":"switch-tab","tabId":2,"url":"https://b.test/"},{"type":"tab-removed","tabId":1}]`)
	assert.Equal(t, 2, c.DesignatedTab())
	assert.False(t, c.HasTab(1))
}

func TestApplyPrebid(t *testing.T) {
	t.Parallel()

	c := newCore(t, settings.ModeUnlimited)
	applyAll(t, c, `{"type":"prebid","tabId":9,"version":"9.2.0","errors":["timeout"],"events":[
		{"eventType":"auctionInit","auctionId":"p1","timestamp":1700000000000},
		{"eventType":"bidResponse","auctionId":"p1","bidderCode":"rubicon","adUnitCode":"top","cpm":1.1,"timestamp":1700000000200},
		{"eventType":"adRenderFailed","reason":"noAd","adUnitCode":"side","timestamp":1700000000300}]}`)

	snap, err := c.Snapshot(9, types.CategoryPrebid)
	require.NoError(t, err)
	require.NotNil(t, snap.Prebid)
	assert.Equal(t, "9.2.0", snap.Prebid.Version)
	assert.Contains(t, snap.Prebid.Auctions, "p1")
	assert.Len(t, snap.Prebid.Errors, 2)
}

func TestApplyRejectsBadEnvelopes(t *testing.T) {
	t.Parallel()

	c := newCore(t, settings.ModeUnlimited)
	assert.ErrorIs(t, Apply(c, Envelope{Type: "mystery", TabID: 1}), ErrUnknownType)
	assert.ErrorIs(t, Apply(c, Envelope{Type: TypeBeforeSendHeaders, TabID: -1}), ErrNoTab)
}
