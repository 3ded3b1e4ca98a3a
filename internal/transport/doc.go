// Package transport moves console events out of a running session.
//
// The sinks here satisfy console.Sink and can be chained: Encoding bounds
// event data with a serialize.Replicator, Throttle caps the event rate,
// Channel decouples the session from a slower consumer without ever
// blocking it, and Buffer simply collects.
//
// Codec turns frames into bytes for a network peer, as JSON (sonic) or
// MessagePack, optionally compressed with gzip, zstd or s2.
package transport
