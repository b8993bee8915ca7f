package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradelab/internal/model"
)

const (
	defaultOKXBaseURL = "https://www.okx.com"
	okxBarCap         = 300
)

// okxIntervalTable maps canonical interval tokens to OKX bar tokens. OKX
// uses upper-case letters for hour-and-above granularities; the table is
// explicit so the mapping stays reversible.
var okxIntervalTable = map[model.Interval]string{
	model.Interval1m:  "1m",
	model.Interval3m:  "3m",
	model.Interval5m:  "5m",
	model.Interval15m: "15m",
	model.Interval30m: "30m",
	model.Interval1h:  "1H",
	model.Interval2h:  "2H",
	model.Interval4h:  "4H",
	model.Interval6h:  "6H",
	model.Interval12h: "12H",
	model.Interval1d:  "1D",
	model.Interval1w:  "1W",
}

// OKXProvider fetches candles from the OKX v5 market API as the fallback
// source. Canonical USDT-pair symbols translate to perpetual-swap instrument
// IDs (BTCUSDT -> BTC-USDT-SWAP); responses arrive newest-first and are
// reversed to ascending before returning.
type OKXProvider struct {
	baseURL string
	client  *http.Client
}

// NewOKXProvider creates the secondary provider. baseURL "" uses the
// production endpoint; timeout 0 defaults to 10s.
func NewOKXProvider(baseURL string, timeout time.Duration) *OKXProvider {
	if baseURL == "" {
		baseURL = defaultOKXBaseURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &OKXProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *OKXProvider) Name() string { return "okx" }
func (p *OKXProvider) BarCap() int  { return okxBarCap }

// TranslateSymbol converts a canonical symbol to an OKX instrument ID.
func TranslateSymbol(symbol string) string {
	if base, ok := strings.CutSuffix(symbol, "USDT"); ok && base != "" {
		return base + "-USDT-SWAP"
	}
	return symbol
}

// CanonicalSymbol is the inverse of TranslateSymbol.
func CanonicalSymbol(instID string) string {
	if base, ok := strings.CutSuffix(instID, "-USDT-SWAP"); ok {
		return base + "USDT"
	}
	return instID
}

// TranslateInterval converts a canonical interval to an OKX bar token.
func TranslateInterval(iv model.Interval) (string, error) {
	bar, ok := okxIntervalTable[iv]
	if !ok {
		return "", fmt.Errorf("interval %q has no okx mapping", iv)
	}
	return bar, nil
}

type okxResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

// OKX error codes for an unknown instrument ID.
const (
	okxCodeInstrumentNotExist = "51001"
	okxCodeParameterError     = "51000"
)

// Fetch requests /api/v5/market/history-candles with translated identifiers
// and normalizes the response to canonical ascending bars.
func (p *OKXProvider) Fetch(ctx context.Context, symbol string, iv model.Interval, startMs, endMs int64, limit int) ([]model.Bar, error) {
	bar, err := TranslateInterval(iv)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > okxBarCap {
		limit = okxBarCap
	}

	// OKX paginates backwards: "after" returns records earlier than the
	// given timestamp, "before" records later than it.
	q := url.Values{}
	q.Set("instId", TranslateSymbol(symbol))
	q.Set("bar", bar)
	q.Set("before", strconv.FormatInt(startMs-1, 10))
	q.Set("after", strconv.FormatInt(endMs, 10))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/v5/market/history-candles?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("okx build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("okx candles: %w", classifyErr(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("okx candles: unexpected status %d", resp.StatusCode)
	}

	var out okxResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("okx decode: %w", err)
	}
	if out.Code != "0" {
		if out.Code == okxCodeInstrumentNotExist || out.Code == okxCodeParameterError {
			return nil, fmt.Errorf("okx %s: %s: %w", symbol, out.Msg, ErrUnknownSymbol)
		}
		return nil, fmt.Errorf("okx candles: code %s: %s", out.Code, out.Msg)
	}

	// Rows: [ts, open, high, low, close, volume, ...], newest first.
	bars := make([]model.Bar, 0, len(out.Data))
	for _, row := range out.Data {
		if len(row) < 6 {
			continue
		}
		b, err := okxRowToBar(row)
		if err != nil {
			return nil, fmt.Errorf("okx parse row: %w", err)
		}
		bars = append(bars, b)
	}
	model.SortBarsAscending(bars)
	return bars, nil
}

func okxRowToBar(row []string) (model.Bar, error) {
	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("timestamp: %w", err)
	}
	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		f, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		fields[i] = f
	}
	return model.Bar{
		Time:   ts,
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, nil
}
