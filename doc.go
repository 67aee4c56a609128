// Package credauth implements the credential and session lifecycle of a
// service: password login with per-principal lockout, short-lived signed
// session tokens, long-lived rotating opaque rotation tokens, one-time codes
// for signup verification and password reset, and a password policy with
// reuse history.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// credauth is the public surface. It exposes [Engine], [Builder], [Config],
// the typed [Error] taxonomy and value types. Orchestration lives in
// internal/flows; components live in jwt, session, otp, password and
// credential; persistence lives in store/postgres, store/memory and
// internal/stores (Redis).
//
// # Error handling
//
// Every Engine method returns nil or an *[Error]. Use [KindOf], [RetryAfter],
// [Violations] and [PublicMessage] to render it; errors.Is works against the
// sentinels in this package.
//
// # What this package must NOT do
//
//   - Expose raw rotation tokens or codes anywhere but the return value that
//     hands them to the caller.
//   - Log passwords, codes or tokens.
//   - Import any sub-package that re-imports credauth (no import cycles).
package credauth
