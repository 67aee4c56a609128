// Package middleware adapts credauth.Engine to net/http.
//
//   - [Guard] verifies the bearer session token and stores its claims in the
//     request context.
//   - [RequireRole] rejects requests whose claims lack a role. Mount it
//     behind Guard.
//   - [ClientIP] records the caller address for the engine's per-client
//     code request budget.
//
// Authentication decisions stay in the engine; this package only maps them
// to status codes.
package middleware
