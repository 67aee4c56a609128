// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunChangePassword, etc.) accepts a
// typed dependency struct and returns results without side-effects beyond
// those dependencies. The Engine keeps ownership of every component and maps
// flow outcomes onto the public error taxonomy, audit events and metrics.
//
// # Architecture boundaries
//
// Flow functions coordinate the credential store, token signer, session
// manager, one-time code manager, password policy and login throttle. They do
// NOT own any of these resources.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import credauth (to avoid import cycles).
//   - Perform I/O directly; all I/O goes through dependency interfaces.
package flows
