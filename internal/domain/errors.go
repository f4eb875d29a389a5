package domain

import "errors"

// Malformed input. Rejected before any state is touched.
var (
	ErrMalformedTerms        = errors.New("malformed terms")
	ErrUnsupportedEvent      = errors.New("unsupported event type for contract type")
	ErrMalformedExternalData = errors.New("malformed external data")
	ErrUnsortedSchedule      = errors.New("schedule is not sorted")
	ErrEventInPast           = errors.New("event is before the asset status date")
	ErrMalformedEvent        = errors.New("malformed event encoding")
	ErrInvalidID             = errors.New("invalid identifier")
)

// Ordering and progression.
var (
	ErrFoundEarlierEvent = errors.New("found earlier event")
	ErrEventNotYetDue    = errors.New("event not yet due")
	ErrNoEventDue        = errors.New("no event to progress")
	ErrAssetFinalState   = errors.New("asset is in a final state")
)

// ErrDataNotAvailable means a required data point has not been published
// yet. Callers may retry once it is.
var ErrDataNotAvailable = errors.New("external data not available")

// Infrastructure.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrLockHeld         = errors.New("lock already held")
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// IsRetryable reports whether err is a transient condition that a later
// attempt may clear.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDataNotAvailable) ||
		errors.Is(err, ErrEventNotYetDue) ||
		errors.Is(err, ErrLockHeld) ||
		errors.Is(err, ErrConcurrentUpdate)
}
