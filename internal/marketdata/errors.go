package marketdata

import "errors"

var (
	// ErrUnknownSymbol means the provider reports the symbol as not listed.
	// Recoverable: the reconciler falls back to the next provider.
	ErrUnknownSymbol = errors.New("symbol unknown to provider")

	// ErrProviderTimeout means a provider request exceeded the caller's
	// deadline. Recoverable by fallback.
	ErrProviderTimeout = errors.New("provider request timed out")

	// ErrNoDataAvailable means every configured provider failed.
	// Terminal: nothing was cached and the caller may re-invoke the fetch.
	ErrNoDataAvailable = errors.New("no data available from any provider")

	// ErrInvalidRange is returned for an empty or inverted time range or an
	// unknown interval.
	ErrInvalidRange = errors.New("invalid fetch range")
)
