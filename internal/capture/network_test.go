package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/psat-core/internal/types"
)

func responseHalves(reqID, frameID string) (ResponseContext, ResponseHeaders) {
	return ResponseContext{RequestID: reqID, FrameID: frameID, URL: "https://ads.test/pixel", Timestamp: 10},
		ResponseHeaders{RequestID: reqID, SetCookie: []SetCookieLine{{Line: "id=abc; Domain=ads.test; Path=/; Secure; SameSite=None"}}}
}

// A response stashed for an unknown frame 5 resolves through frame 5's
// parent 2 once the frame-attached event arrives, in either order.
func TestOutOfOrderFrameAttach(t *testing.T) {
	t.Parallel()

	orders := map[string]func(c *Capture){
		"response before frame attach": func(c *Capture) {
			ctx, hdr := responseHalves("r1", "5")
			require.NoError(t, c.OnResponseContext(1, ctx))
			require.NoError(t, c.OnResponseHeaders(1, hdr))
			assert.Empty(t, tabCookies(t, c, 1), "parked until frame 5 is known")
			assert.Equal(t, 1, c.PendingLen())
			require.NoError(t, c.OnFrameAttached(1, "5", "2"))
		},
		"frame attach before response": func(c *Capture) {
			require.NoError(t, c.OnFrameAttached(1, "5", "2"))
			ctx, hdr := responseHalves("r1", "5")
			require.NoError(t, c.OnResponseHeaders(1, hdr))
			require.NoError(t, c.OnResponseContext(1, ctx))
		},
	}

	for name, run := range orders {
		run := run
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c, _ := newTestCapture(t, richUnlimited)
			require.NoError(t, c.OnTabCreated(1, "https://site.test/"))
			require.NoError(t, c.OnTargetAttached(1, "2"))

			run(c)

			got := tabCookies(t, c, 1)
			rec, ok := got[cookieKey(t, "id", "ads.test", "/")]
			require.True(t, ok, "cookie merged")
			assert.Equal(t, []string{"2"}, rec.FrameIDs)
			assert.Equal(t, ".ads.test", rec.Parsed.Domain)
			assert.Equal(t, 0, c.PendingLen())
		})
	}
}

// The complementary processing runs exactly once whichever half comes first.
func TestPairingAtMostOnce(t *testing.T) {
	t.Parallel()

	for _, headersFirst := range []bool{false, true} {
		headersFirst := headersFirst
		t.Run(map[bool]string{false: "context first", true: "headers first"}[headersFirst], func(t *testing.T) {
			t.Parallel()
			c, _ := newTestCapture(t, richUnlimited)
			require.NoError(t, c.OnFrameNavigated(1, "main", "", "https://site.test/"))

			ctx, hdr := responseHalves("r1", "main")
			if headersFirst {
				require.NoError(t, c.OnResponseHeaders(1, hdr))
				assert.Equal(t, 1, c.PendingLen())
				require.NoError(t, c.OnResponseContext(1, ctx))
			} else {
				require.NoError(t, c.OnResponseContext(1, ctx))
				assert.Equal(t, 1, c.PendingLen())
				require.NoError(t, c.OnResponseHeaders(1, hdr))
			}
			assert.Equal(t, 0, c.PendingLen(), "stash consumed")

			rec := tabCookies(t, c, 1)[cookieKey(t, "id", "ads.test", "/")]
			assert.Len(t, rec.NetworkEvents.ResponseEvents, 1, "processed once")
			d, _ := c.TakeDirty(1)
			assert.Equal(t, 1, d.Cookies)

			// A late duplicate context starts a new stash; it is never
			// processed against the consumed half.
			require.NoError(t, c.OnResponseContext(1, ctx))
			rec = tabCookies(t, c, 1)[cookieKey(t, "id", "ads.test", "/")]
			assert.Len(t, rec.NetworkEvents.ResponseEvents, 1)
		})
	}
}

func TestDuplicateHalfReplacesStash(t *testing.T) {
	t.Parallel()

	c, _ := newTestCapture(t, richUnlimited)
	require.NoError(t, c.OnFrameNavigated(1, "main", "", "https://site.test/"))
	_, hdr := responseHalves("r1", "main")
	require.NoError(t, c.OnResponseHeaders(1, hdr))
	require.NoError(t, c.OnResponseHeaders(1, hdr))
	assert.Equal(t, 1, c.PendingLen())
}

func TestRequestCookiesCarryBlockedReasons(t *testing.T) {
	t.Parallel()

	c, _ := newTestCapture(t, richUnlimited)
	require.NoError(t, c.OnFrameNavigated(1, "main", "", "https://site.test/"))
	require.NoError(t, c.OnRequestHeaders(1, RequestHeaders{
		RequestID: "q1",
		Cookies: []RequestCookie{{
			Cookie:         types.ParsedCookie{Name: "uid", Value: "7", Domain: ".tracker.test", Path: "/"},
			BlockedReasons: []string{"ThirdPartyPhaseout"},
		}},
	}))
	require.NoError(t, c.OnRequestContext(1, RequestContext{RequestID: "q1", FrameID: "main", URL: "https://tracker.test/t.js", Timestamp: 3}))

	rec := tabCookies(t, c, 1)[cookieKey(t, "uid", "tracker.test", "/")]
	assert.True(t, rec.IsBlocked)
	assert.Equal(t, types.HeaderRequest, rec.HeaderType)
	assert.Equal(t, types.BlockedInAllEvents, rec.BlockingStatus.Outbound)
	assert.Equal(t, types.BlockUnknown, rec.BlockingStatus.Inbound)
	assert.False(t, rec.IsFirstParty)
	assert.Equal(t, []string{"main"}, rec.FrameIDs)
}

func TestWebRequestHeaders(t *testing.T) {
	t.Parallel()

	c, _ := newTestCapture(t, lightSingle)
	require.NoError(t, c.OnTabCreated(3, "https://news.test/"))
	require.NoError(t, c.OnWebRequestHeaders(3, WebRequestHeaders{
		RequestID: "w1",
		FrameID:   "0",
		URL:       "https://news.test/",
		Direction: types.HeaderResponse,
		Headers:   []Header{{Name: "Set-Cookie", Value: "sid=1; Path=/\nbad"}, {Name: "Content-Type", Value: "text/html"}},
	}))
	require.NoError(t, c.OnWebRequestHeaders(3, WebRequestHeaders{
		RequestID:     "w2",
		FrameID:       "4",
		ParentFrameID: "0",
		URL:           "https://news.test/api",
		Direction:     types.HeaderRequest,
		Headers:       []Header{{Name: "cookie", Value: "sid=1; lang=en"}},
	}))

	got := tabCookies(t, c, 3)
	require.Len(t, got, 2)
	sid := got[cookieKey(t, "sid", "news.test", "/")]
	assert.Equal(t, []string{"0", "4"}, sid.FrameIDs)
	assert.Len(t, sid.NetworkEvents.ResponseEvents, 1)
	assert.Len(t, sid.NetworkEvents.RequestEvents, 1)
	assert.True(t, sid.IsFirstParty)
	assert.Equal(t, types.NotBlocked, sid.BlockingStatus.Inbound)
}

func TestRichInstrumentationGate(t *testing.T) {
	t.Parallel()

	light, _ := newTestCapture(t, lightSingle)
	_, hdr := responseHalves("r1", "main")
	require.NoError(t, light.OnResponseHeaders(1, hdr))
	require.NoError(t, light.OnCookieIssue(1, CookieIssue{Name: "id", Domain: "a.test"}))
	assert.Equal(t, 0, light.PendingLen())
	assert.Empty(t, tabCookies(t, light, 1))

	rich, _ := newTestCapture(t, richUnlimited)
	require.NoError(t, rich.OnWebRequestHeaders(1, WebRequestHeaders{
		RequestID: "w1", FrameID: "0", URL: "https://a.test/", Direction: types.HeaderResponse,
		Headers: []Header{{Name: "set-cookie", Value: "x=1"}},
	}))
	assert.Empty(t, tabCookies(t, rich, 1))
}

func TestExpirePendingProcessesAtTabLevel(t *testing.T) {
	t.Parallel()

	c, clock := newTestCapture(t, richUnlimited)
	require.NoError(t, c.OnTabCreated(1, "https://site.test/"))

	// Header half whose context never arrives.
	_, hdr := responseHalves("r1", "")
	hdr.SetCookie[0].Line = "orphan=1; Domain=site.test"
	require.NoError(t, c.OnResponseHeaders(1, hdr))

	// Complete pair for a frame whose parent never arrives.
	ctx, hdr2 := responseHalves("r2", "9")
	require.NoError(t, c.OnResponseContext(1, ctx))
	require.NoError(t, c.OnResponseHeaders(1, hdr2))
	require.Equal(t, 2, c.PendingLen())

	clock.Advance(10 * 1e9)
	assert.Equal(t, 0, c.ExpirePending(), "nothing older than the TTL yet")

	clock.Advance(31 * 1e9)
	assert.Equal(t, 2, c.ExpirePending())
	assert.Equal(t, 0, c.PendingLen())

	got := tabCookies(t, c, 1)
	require.Len(t, got, 2)
	assert.Empty(t, got[cookieKey(t, "orphan", "site.test", "/")].FrameIDs)
	assert.Empty(t, got[cookieKey(t, "id", "ads.test", "/")].FrameIDs)
}

func TestCycleInFrameGraphFallsBackToTabLevel(t *testing.T) {
	t.Parallel()

	c, _ := newTestCapture(t, richUnlimited)
	require.NoError(t, c.OnTargetAttached(1, "main"))
	require.NoError(t, c.OnFrameAttached(1, "a", "b"))
	require.NoError(t, c.OnFrameAttached(1, "b", "c"))
	require.NoError(t, c.OnFrameAttached(1, "c", "a"))

	ctx, hdr := responseHalves("r1", "a")
	require.NoError(t, c.OnResponseContext(1, ctx))
	require.NoError(t, c.OnResponseHeaders(1, hdr))

	rec, ok := tabCookies(t, c, 1)[cookieKey(t, "id", "ads.test", "/")]
	require.True(t, ok)
	assert.Empty(t, rec.FrameIDs)
	assert.Equal(t, 0, c.PendingLen())
}
