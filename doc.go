// Package ssoBroker is a session broker for web hosts that delegate
// authentication to a remote authority.
//
// A [Broker] forwards login credentials to the authority, turns a successful
// validation into local session attributes plus an HttpOnly bearer-token
// cookie, resumes sessions from that cookie by re-validating the token, and
// ends sessions. It holds no per-session state of its own: everything lives
// in the host's [session.Values].
//
// # Architecture boundaries
//
// ssoBroker is the public surface: [Builder], [Config], [Broker] and the
// audit/metrics value types. The authority wire protocol lives in authority/,
// cookie scoping in cookie/, host session storage in session/, and throttling
// and audit dispatch under internal/.
//
// # What this package must NOT do
//
//   - Log, audit or persist bearer tokens or secrets.
//   - Retry authority calls. Each operation makes at most one remote call.
//   - Let rejections or transport failures escape as errors. Only a malformed
//     successful response is returned as an error.
package ssoBroker
