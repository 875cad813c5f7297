package market

import "errors"

// Error taxonomy of the market engine. Every public operation that fails
// returns one of these sentinels (possibly wrapped); the caller's invocation
// is aborted as a whole and no partial mutation survives.
var (
	// ErrUnauthorized is returned when the caller lacks the role or
	// ownership required by the operation.
	ErrUnauthorized = errors.New("market: unauthorized")
	// ErrNotFound is returned for lookups on absent keys: asks, deposit
	// records, withdrawal ids and uninitialized traded-volume counters.
	ErrNotFound = errors.New("market: not found")
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("market: insufficient funds")
	// ErrOverflow is returned when a credit would leave the representable
	// balance range.
	ErrOverflow = errors.New("market: balance overflow")

	errNilState = errors.New("market engine: state not configured")
)
