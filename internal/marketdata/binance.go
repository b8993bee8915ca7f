package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tradelab/internal/model"
)

const (
	defaultBinanceBaseURL = "https://fapi.binance.com"
	binanceBarCap         = 1000
)

// BinanceProvider fetches klines from the Binance USDT-margined futures API.
// Binance is the canonical vocabulary: symbols ("BTCUSDT") and interval
// tokens ("1h") pass through untranslated, and responses arrive ascending.
type BinanceProvider struct {
	baseURL string
	client  *http.Client
}

// NewBinanceProvider creates the primary provider. baseURL "" uses the
// production endpoint; timeout 0 defaults to 10s.
func NewBinanceProvider(baseURL string, timeout time.Duration) *BinanceProvider {
	if baseURL == "" {
		baseURL = defaultBinanceBaseURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &BinanceProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *BinanceProvider) Name() string { return "binance" }
func (p *BinanceProvider) BarCap() int  { return binanceBarCap }

// Fetch requests /fapi/v1/klines and converts the array-of-arrays response
// into canonical bars.
func (p *BinanceProvider) Fetch(ctx context.Context, symbol string, iv model.Interval, startMs, endMs int64, limit int) ([]model.Bar, error) {
	if limit <= 0 || limit > binanceBarCap {
		limit = binanceBarCap
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(iv))
	q.Set("startTime", strconv.FormatInt(startMs, 10))
	q.Set("endTime", strconv.FormatInt(endMs, 10))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/fapi/v1/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("binance build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance klines: %w", classifyErr(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		// Binance answers 400/404 for unlisted symbols.
		return nil, fmt.Errorf("binance %s: %w", symbol, ErrUnknownSymbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance klines: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binance read body: %w", classifyErr(err))
	}

	// Kline rows: [openTime, open, high, low, close, volume, closeTime, ...]
	// with prices as strings and openTime as a number.
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance decode: %w", err)
	}

	bars := make([]model.Bar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		bar, err := klineRowToBar(row)
		if err != nil {
			return nil, fmt.Errorf("binance parse row: %w", err)
		}
		bars = append(bars, bar)
	}
	model.SortBarsAscending(bars)
	return bars, nil
}

// klineRowToBar decodes one Binance-shaped kline row. The open time is a
// JSON number, prices and volume are quoted decimal strings.
func klineRowToBar(row []json.RawMessage) (model.Bar, error) {
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return model.Bar{}, fmt.Errorf("open time: %w", err)
	}

	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			// Some mirrors emit unquoted numbers.
			var f float64
			if err2 := json.Unmarshal(row[i+1], &f); err2 != nil {
				return model.Bar{}, fmt.Errorf("field %d: %w", i+1, err)
			}
			fields[i] = f
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		fields[i] = f
	}

	return model.Bar{
		Time:   openTime,
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, nil
}
