// blocking.go — Blocking status derivation from network events.
package cookies

import "github.com/brennhill/psat-core/internal/types"

// DeriveBlockStatus classifies one direction of network events.
func DeriveBlockStatus(events []types.NetworkEvent) types.BlockStatus {
	if len(events) == 0 {
		return types.BlockUnknown
	}
	blocked := 0
	for _, ev := range events {
		if ev.Blocked {
			blocked++
		}
	}
	switch blocked {
	case 0:
		return types.NotBlocked
	case len(events):
		return types.BlockedInAllEvents
	default:
		return types.BlockedInSomeEvents
	}
}

// DeriveBlockingStatus computes inbound (response) and outbound (request) status.
func DeriveBlockingStatus(ne types.NetworkEvents) types.BlockingStatus {
	return types.BlockingStatus{
		Inbound:  DeriveBlockStatus(ne.ResponseEvents),
		Outbound: DeriveBlockStatus(ne.RequestEvents),
	}
}
