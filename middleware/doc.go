// Package middleware adapts the Broker to net/http handler chains.
//
//   - [RequireSession] admits requests whose host session is authenticated,
//     resuming it from the bearer-token cookie when needed.
//   - [ClientIP] records the caller address used for login throttling and
//     audit events.
//
// The package makes no authentication decisions of its own; every verdict
// comes from Broker.ResumeSession.
package middleware
