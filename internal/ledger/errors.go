package ledger

import "errors"

// State-machine and argument validation errors. These fail immediately and
// locally; callers either check state first or handle the typed failure.
// None of them is retried automatically.
var (
	// ErrNoPosition is returned by operations that require an open position.
	ErrNoPosition = errors.New("no open position")

	// ErrOppositePosition is returned when opening against an existing
	// position on the other side. The ledger never auto-flips; close first.
	ErrOppositePosition = errors.New("opposite position exists, close it before reversing")

	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrInvalidPrice is returned for zero or negative prices.
	ErrInvalidPrice = errors.New("price must be positive")

	// ErrInvalidPercent is returned for a percent outside (0, 100] on
	// reduce, or <= 0 on add.
	ErrInvalidPercent = errors.New("percent out of range")

	// ErrInvalidLeverage is returned for leverage outside [1, 125].
	ErrInvalidLeverage = errors.New("leverage out of range [1, 125]")

	// ErrInvalidSide is returned for an unknown position side.
	ErrInvalidSide = errors.New("side must be long or short")
)
