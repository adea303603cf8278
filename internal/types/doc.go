// doc.go — Package documentation for foundational cross-cutting types.

// Package types provides the foundational, zero-dependency types for psat-core.
//
// This package contains the records shared between the correlation core, the
// event-source decoders and the UI transport:
//   - Cookie records, parsed attributes, network events and blocking status
//   - Protected Audience auction events
//   - Attribution Reporting source and trigger registrations
//   - Prebid.js auction records
//   - Per-tab snapshots and dirty-counter categories
//
// Design Principle: Zero Dependencies
// This package imports only the Go standard library. It is safe to import from
// any other package without creating circular dependencies.
//
// Architecture Layer: Foundation
//
//	Layer 1: types (zero deps) ← YOU ARE HERE
//	Layer 2: Stores (frames, pending, cookies, auctions, attribution, prebid)
//	Layer 3: capture (tab lifecycle + listener glue), push, cdp, webrequest
//	Layer 4: Wiring (server, client, cmd/psat)
package types
