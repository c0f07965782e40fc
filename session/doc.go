// Package session is the host-side session store the broker writes into.
//
// # Components
//
//   - [Values]: the key-value view of one session that the broker mutates.
//   - [Store]: persistence keyed by opaque session id ([RedisStore], [MemoryStore]).
//   - [Manager]: maps requests to sessions through a signed id cookie and
//     commits changes at the end of the request.
//
// # Expiration
//
// Sessions expire after an idle TTL. [RedisStore] optionally slides the TTL
// on every load (with jitter) and caps it with an absolute lifetime measured
// from creation.
//
// # What this package must NOT do
//
//   - Import the broker or the authority client.
//   - Store bearer tokens. Only attributes derived from a validation result live here.
package session
