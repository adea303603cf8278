package push

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/psat-core/internal/capture"
)

func TestWebSocketSurfaceRoundTrip(t *testing.T) {
	t.Parallel()

	c := newCore(t)
	d := NewDispatcher(c, Config{})
	setCookie(t, c, 7, "r1", "a=1")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := Accept(w, r, 7, capture.SurfaceDevTools)
		if err != nil {
			return
		}
		defer d.CloseSurface(s.ID())
		if err := d.Open(r.Context(), s); err != nil {
			return
		}
		s.Serve(r.Context())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, TypeInitialSync, first.Type)
	assert.Equal(t, 7, first.Payload.TabID)
	require.NotNil(t, first.Payload.Snapshot)
	assert.Len(t, first.Payload.Snapshot.Cookies, 1)

	setCookie(t, c, 7, "r2", "b=1")
	d.Tick(t.Context())
	var next Message
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, TypeCookies, next.Type)
	assert.Len(t, next.Payload.Snapshot.Cookies, 2)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return d.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
