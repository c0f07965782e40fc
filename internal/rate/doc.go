// Package rate implements the Redis-backed login throttle that sits in front
// of the remote authority.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - bl:  login attempts per identifier (SHA-256 of the folded identifier)
//   - bli: login attempts per client IP
//
// Identifiers are hashed before they become Redis keys so that the keyspace
// does not enumerate who tried to sign in.
package rate
