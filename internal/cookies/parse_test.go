package cookies

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/psat-core/internal/types"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParseSetCookie(t *testing.T) {
	t.Parallel()

	pc := ParseContext{RequestURL: "https://ads.tracker.test/pixel/img.gif", TopLevelURL: "https://www.news.example/a", Now: fixedNow}

	got, err := ParseSetCookie("uid=abc123; Domain=.tracker.test; Path=/; Secure; HttpOnly; SameSite=None; Max-Age=3600; Priority=High; Partitioned", pc)
	require.NoError(t, err)
	assert.Equal(t, types.ParsedCookie{
		Name:         "uid",
		Value:        "abc123",
		Domain:       ".tracker.test",
		Path:         "/",
		Expires:      "2026-03-01T13:00:00Z",
		HTTPOnly:     true,
		Secure:       true,
		SameSite:     "None",
		Priority:     "High",
		PartitionKey: "https://news.example",
		Size:         9,
	}, got)
}

func TestParseSetCookieDefaults(t *testing.T) {
	t.Parallel()

	pc := ParseContext{RequestURL: "https://shop.example/cart/items", Now: fixedNow}
	got, err := ParseSetCookie("session=xyz", pc)
	require.NoError(t, err)
	assert.Equal(t, "shop.example", got.Domain)
	assert.Equal(t, "/cart", got.Path)
	assert.Equal(t, types.SessionExpiry, got.Expires)
	assert.Empty(t, got.SameSite)

	_, err = ParseSetCookie("", pc)
	assert.Error(t, err)
}

func TestParseCookieHeader(t *testing.T) {
	t.Parallel()

	got, err := ParseCookieHeader("a=1; b=two", ParseContext{RequestURL: "https://API.example.com/v1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "api.example.com", got[0].Domain)
	assert.Equal(t, "/", got[0].Path)
	assert.Equal(t, "two", got[1].Value)
}

func TestParseSetCookieHeaderMultiline(t *testing.T) {
	t.Parallel()

	got, errs := ParseSetCookieHeader("a=1; Path=/\n\nb=2; Path=/x\n=novalue", ParseContext{RequestURL: "https://e.test/", Now: fixedNow})
	require.Len(t, got, 2)
	assert.Equal(t, "/x", got[1].Path)
	assert.Len(t, errs, 1)
}

func TestExpiresFromEpoch(t *testing.T) {
	t.Parallel()

	assert.Equal(t, types.SessionExpiry, ExpiresFromEpoch(-1, false))
	assert.Equal(t, types.SessionExpiry, ExpiresFromEpoch(1700000000, true))
	assert.Equal(t, "2023-11-14T22:13:20Z", ExpiresFromEpoch(1700000000, false))
}

func TestDefaultPath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://e.test":           "/",
		"https://e.test/":          "/",
		"https://e.test/a":         "/",
		"https://e.test/a/b":       "/a",
		"https://e.test/a/b/c?q=1": "/a/b",
		"not a url at all %zz":     "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, DefaultPath(in), in)
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	k1, err := Key("id", ".Example.com", "/")
	require.NoError(t, err)
	k2, err := Key("id", "example.com", "")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	_, err = Key(" ", "example.com", "/")
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestParseDocumentCookieClearsHTTPOnly(t *testing.T) {
	t.Parallel()

	c, err := ParseDocumentCookie("theme=dark; path=/; HttpOnly", ParseContext{RequestURL: "https://site.test/app/page"})
	require.NoError(t, err)
	assert.Equal(t, "theme", c.Name)
	assert.Equal(t, "site.test", c.Domain)
	assert.False(t, c.HTTPOnly)
}
