package ssoBroker

import (
	"errors"

	"github.com/MrEthical07/ssoBroker/authority"
	"github.com/MrEthical07/ssoBroker/internal/rate"
	"github.com/MrEthical07/ssoBroker/session"
)

var (
	// ErrMalformedResult is returned by CreateSession and ResumeSession when
	// the authority answered 2xx with a body that is not a usable result.
	ErrMalformedResult = authority.ErrMalformedResult
	// ErrRejected marks an authority refusal. It never crosses the Broker
	// boundary; it is exported for callers of the authority client.
	ErrRejected = authority.ErrRejected
	// ErrUnavailable marks a transport failure talking to the authority.
	ErrUnavailable = authority.ErrUnavailable
	// ErrLoginRateLimited marks a login refused by the throttle.
	ErrLoginRateLimited = rate.ErrRateLimited
	// ErrSessionStoreUnavailable is returned by the host session store when its backend is down.
	ErrSessionStoreUnavailable = session.ErrStoreUnavailable
	// ErrBrokerNotReady is returned when a nil or closed Broker is used.
	ErrBrokerNotReady = errors.New("broker not initialized")
	// ErrNilSession is returned when a nil session is passed to a Broker operation.
	ErrNilSession = errors.New("nil session")
)
