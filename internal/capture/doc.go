// Package capture is the correlation core: it owns every tab's aggregation
// state and turns raw, partially ordered browser events into merged cookie,
// auction, attribution and Prebid records.
//
// All state lives on one Capture under a single mutex, so each ingestion call
// is atomic with respect to the others. Ordering between the two halves of a
// request (CDP context vs. extra-info headers) and between an event and its
// frame context is not assumed; half-complete work is parked in pending
// buffers and completed by whichever piece arrives last.
//
// Tab lifecycle:
//
//	absent -> initializing -> active -> torn-down
//
// Torn-down tab ids are tombstoned so late events never resurrect them.
// Capacity mode "single" admits only the designated tab; events for any other
// tab are rejected before any aggregation work.
package capture
