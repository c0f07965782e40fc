package authority

import "time"

// Credential is the identifier and secret a user typed into the login form.
// It is only held for the duration of one outbound call.
type Credential struct {
	Identifier string
	Secret     string
}

// String hides the secret so a Credential never leaks through %v.
func (c Credential) String() string {
	return "Credential{Identifier:" + c.Identifier + ", Secret:<redacted>}"
}

// Optional holds a value the authority may or may not have sent.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent value.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it was present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Present reports whether a value was sent.
func (o Optional[T]) Present() bool {
	return o.ok
}

// OrElse returns the value, or def when absent.
func (o Optional[T]) OrElse(def T) T {
	if !o.ok {
		return def
	}
	return o.value
}

// ValidationResult is a successful authentication outcome. A nil result means
// "not authenticated"; there are no partial results.
type ValidationResult struct {
	SubjectID       string
	SubjectRole     Optional[string]
	Token           string
	LastActivity    Optional[time.Time]
	TokenExpiration Optional[time.Time]
}

// String omits the bearer token.
func (r ValidationResult) String() string {
	return "ValidationResult{SubjectID:" + r.SubjectID + ", SubjectRole:" + r.SubjectRole.OrElse("<none>") + "}"
}
