package progress

import "errors"

// Sentinel kinds for aggregation errors.
var (
	// ErrInvalidEventValue marks an event carrying a negative contribution.
	ErrInvalidEventValue = errors.New("invalid event value")
	// ErrOutOfOrderEvent marks a sequence violating the time-ordering
	// contract. Sorting is the caller's responsibility; the aggregator
	// validates and rejects rather than producing a wrong number.
	ErrOutOfOrderEvent = errors.New("out of order event")
)
