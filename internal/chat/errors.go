package chat

import "errors"

// Sentinel errors for conversation recording, checked with errors.Is().
var (
	// ErrMissingExchangeKey indicates a turn submitted without an
	// idempotency key. Keys are mandatory; timestamps are not a
	// substitute under clock skew or rapid retries.
	ErrMissingExchangeKey = errors.New("missing exchange key")

	// ErrExchangeInFlight indicates another execution pass in this
	// process is currently recording the same exchange.
	ErrExchangeInFlight = errors.New("exchange in flight")
)
