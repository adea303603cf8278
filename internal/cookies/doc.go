// Package cookies implements the per-tab cookie aggregation store.
//
// Every observation of a cookie (request header, Set-Cookie response header,
// CDP cookie object, document.cookie write, audit issue) is reduced to an
// Observation and merged into one record per name+domain+path identity.
// Merging only ever adds information: reason and frame sets are unions,
// network events are appended, and a javascript header type is sticky.
package cookies
