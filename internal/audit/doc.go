// Package audit dispatches session lifecycle events to a sink off the request path.
//
//   - [Sink] receives events (channel, JSON lines, logr, no-op).
//   - [Dispatcher] is a buffered relay that either drops or blocks when full.
//   - [Event] is the record: timestamp, type, subject, client IP, outcome.
//
// The package only buffers and delivers. Deciding which events exist and what
// they carry belongs to the broker; in particular bearer tokens and secrets
// never reach an [Event].
package audit
