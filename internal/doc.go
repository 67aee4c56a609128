// Package internal holds helpers private to credauth: secure random tokens,
// numeric codes, and the digests stored in their place.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: koanf-backed settings loader for credauthd
//   - errutil: slog helpers and test assertions for oops errors
//   - flows: the engine operations as Run* functions over explicit deps
//   - limiters: login throttle (Redis and in-memory) and code request budget
//   - logging: slog handler setup with trace correlation
//   - metrics: padded atomic counters and latency histograms
//   - rate: Redis fixed-window primitives used by the limiters
//   - stores: Redis-backed one-time code store
package internal
