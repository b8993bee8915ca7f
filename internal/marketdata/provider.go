// Package marketdata retrieves historical bar series: a local cache first,
// then one or more upstream providers with format reconciliation and
// sequential fallback.
package marketdata

import (
	"context"
	"errors"
	"net"

	"tradelab/internal/model"
)

// Provider is one upstream bar-history source. Implementations own their
// symbol and granularity translation tables (explicit and reversible, never
// inferred) and normalize their native response shape to canonical bars in
// ascending time order.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// BarCap is the provider's per-request bar limit; the reconciler splits
	// larger ranges into batches of at most this many bars.
	BarCap() int

	// Fetch returns canonical bars for [startMs, endMs), at most limit,
	// sorted ascending. An unlisted symbol surfaces ErrUnknownSymbol, a
	// deadline hit ErrProviderTimeout.
	Fetch(ctx context.Context, symbol string, iv model.Interval, startMs, endMs int64, limit int) ([]model.Bar, error)
}

// classifyErr maps transport-level failures onto the package taxonomy.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrProviderTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrProviderTimeout
	}
	return err
}
