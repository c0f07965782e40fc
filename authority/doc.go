// Package authority is the client for the remote authority that validates
// credentials and bearer tokens on behalf of the broker.
//
// # Operations
//
//   - [Client.ValidateNewLogin]: forwards a [Credential] to the new-session endpoint.
//   - [Client.ValidateExistingToken]: presents a bearer token to the existing-session endpoint.
//
// Both return a [ValidationResult] only for a successful response. Every other
// outcome is an error wrapping [ErrRejected], [ErrUnavailable] or
// [ErrMalformedResult]; [Absent] reports whether the error is an ordinary
// "not authenticated" outcome.
//
// # Wire schemas
//
// Deployments disagree on field names. A [Schema] adapts the request and
// response bodies at this boundary so the rest of the module only sees the
// canonical [ValidationResult].
//
// # What this package must NOT do
//
//   - Hold session state or touch cookies.
//   - Retry calls. One attempt per operation.
//   - Put tokens in URLs, bodies, errors or logs.
package authority
