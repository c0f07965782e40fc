package authority

import "errors"

var (
	// ErrRejected is returned when the authority answers with a non-success status.
	ErrRejected = errors.New("authority rejected request")
	// ErrUnavailable is returned when the authority cannot be reached or the call times out.
	ErrUnavailable = errors.New("authority unavailable")
	// ErrMalformedResult is returned when a success response cannot be decoded into a result.
	ErrMalformedResult = errors.New("authority returned malformed result")
	// ErrInvalidConfig is returned by New for unusable client settings.
	ErrInvalidConfig = errors.New("invalid authority client configuration")
)

// Absent reports whether err is an expected "no result" outcome: the token or
// credential was rejected, or the authority was unreachable. Callers treat both
// as a failed authentication.
func Absent(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrUnavailable)
}
