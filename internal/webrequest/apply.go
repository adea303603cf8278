// apply.go — Routes decoded envelopes into the capture core.
package webrequest

import (
	"fmt"

	"github.com/brennhill/psat-core/internal/capture"
	"github.com/brennhill/psat-core/internal/types"
)

// Sink receives envelope events. *capture.Capture implements it.
type Sink interface {
	OnTabCreated(tabID int, url string) error
	OnTabRemoved(tabID int) error
	OnNavigationStarted(tabID int, url string) error
	OnFrameNavigated(tabID int, frameID, parentID, url string) error
	OnWebRequestHeaders(tabID int, ev capture.WebRequestHeaders) error
	OnJavaScriptCookies(tabID int, ev capture.JavaScriptCookies) error
	OnPrebidEvent(tabID int, rep capture.PrebidReport) error
	SwitchTab(tabID int, url string) error
}

// Apply delivers env to sink.
func Apply(sink Sink, env Envelope) error {
	if env.TabID < 0 {
		return fmt.Errorf("%w: %s", ErrNoTab, env.Type)
	}
	switch env.Type {
	case TypeTabCreated:
		return sink.OnTabCreated(env.TabID, env.URL)

	case TypeTabRemoved:
		return sink.OnTabRemoved(env.TabID)

	case TypeNavigationStarted:
		if !env.isTopLevel() {
			// Subframe navigations arrive as frame-navigated.
			return nil
		}
		return sink.OnNavigationStarted(env.TabID, env.URL)

	case TypeFrameNavigated:
		return sink.OnFrameNavigated(env.TabID, env.frameID(), env.parentFrameID(), env.URL)

	case TypeBeforeSendHeaders:
		return sink.OnWebRequestHeaders(env.TabID, headersEvent(env, types.HeaderRequest, env.RequestHeaders))

	case TypeHeadersReceived:
		return sink.OnWebRequestHeaders(env.TabID, headersEvent(env, types.HeaderResponse, env.ResponseHeaders))

	case TypeJSCookies:
		return sink.OnJavaScriptCookies(env.TabID, capture.JavaScriptCookies{
			FrameID: env.frameID(),
			URL:     env.URL,
			Writes:  env.Cookies,
		})

	case TypePrebid:
		return sink.OnPrebidEvent(env.TabID, prebidReport(env))

	case TypeSwitchTab:
		return sink.SwitchTab(env.TabID, env.URL)
	}
	return fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func headersEvent(env Envelope, dir types.HeaderType, hdrs []HTTPHeader) capture.WebRequestHeaders {
	ev := capture.WebRequestHeaders{
		RequestID:     env.RequestID,
		FrameID:       env.frameID(),
		ParentFrameID: env.parentFrameID(),
		URL:           env.URL,
		Direction:     dir,
		Timestamp:     env.seconds(),
		Headers:       make([]capture.Header, 0, len(hdrs)),
	}
	for _, h := range hdrs {
		ev.Headers = append(ev.Headers, capture.Header{Name: h.Name, Value: h.Value})
	}
	return ev
}

func prebidReport(env Envelope) capture.PrebidReport {
	rep := capture.PrebidReport{Version: env.Version, Errors: env.Errors}
	for _, pe := range env.Events {
		rep.Events = append(rep.Events, types.PrebidEvent{
			AuctionID:  pe.AuctionID,
			Type:       pe.EventType,
			Bidder:     pe.Bidder,
			AdUnitCode: pe.AdUnitCode,
			CPM:        pe.CPM,
			Currency:   pe.Currency,
			Error:      pe.Reason,
			Time:       pe.Timestamp,
		})
	}
	return rep
}
