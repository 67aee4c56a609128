// Package limiters holds the per-principal login throttle and the per-client
// code request limiter.
//
// # Login throttle
//
// Each principal moves Normal -> Warning -> Locked. Failures increment a
// counter; reaching the threshold sets a lock with a fixed cooldown and zeroes
// the counter. A success clears the counter. While locked, callers must reject
// attempts without touching the credential store.
//
// Two backends exist: Redis (shared across instances, atomic via a Lua
// script) and in-memory (single process).
//
// All limiters are nil-safe: calling any method on a nil receiver is a no-op.
package limiters
