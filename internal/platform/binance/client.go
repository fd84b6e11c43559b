package binance

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

// DefaultBaseURL is the public Binance spot REST root.
const DefaultBaseURL = "https://api.binance.com"

// Client is the REST client for the Binance spot 24h ticker endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ domain.TickerSource = (*Client)(nil)

// NewClient creates a new Binance client.
//
// baseURL is the API root, e.g. "https://api.binance.com". The per-request
// deadline comes from the caller's context; the client timeout is only a
// backstop.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string { return "binance" }

// ExchangeSymbol converts "BTC/USDT" to the exchange form "BTCUSDT".
func ExchangeSymbol(symbol string) string {
	r := strings.NewReplacer("/", "", "-", "", "_", "")
	return strings.ToUpper(r.Replace(symbol))
}

// FetchTicker returns the 24h statistics for symbol. Error bodies, missing
// fields and unparseable numbers are reported as errors.
func (c *Client) FetchTicker(ctx context.Context, symbol string) (domain.RawSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", ExchangeSymbol(symbol))

	body, err := c.doGet(ctx, "/api/v3/ticker/24hr?"+params.Encode())
	if err != nil {
		return domain.RawSnapshot{}, fmt.Errorf("binance: ticker %s: %w", symbol, err)
	}

	snap, err := parseTicker(symbol, body)
	if err != nil {
		return domain.RawSnapshot{}, fmt.Errorf("binance: ticker %s: %w", symbol, err)
	}
	snap.FetchedAt = time.Now().UTC()
	return snap, nil
}

func parseTicker(symbol string, body []byte) (domain.RawSnapshot, error) {
	if !gjson.ValidBytes(body) {
		return domain.RawSnapshot{}, fmt.Errorf("%w: invalid json", domain.ErrMalformedSnapshot)
	}
	if msg := gjson.GetBytes(body, "msg"); msg.Exists() {
		code := gjson.GetBytes(body, "code").Int()
		return domain.RawSnapshot{}, fmt.Errorf("%w: code=%d msg=%s", domain.ErrProviderError, code, msg.String())
	}

	fields := gjson.GetManyBytes(body, "lastPrice", "highPrice", "lowPrice", "quoteVolume", "priceChangePercent")
	names := [...]string{"lastPrice", "highPrice", "lowPrice", "quoteVolume", "priceChangePercent"}
	var vals [5]float64
	for i, f := range fields {
		v, err := number(f)
		if err != nil {
			return domain.RawSnapshot{}, fmt.Errorf("%w: %s: %v", domain.ErrMalformedSnapshot, names[i], err)
		}
		// Only the percentage may be negative.
		if v < 0 && names[i] != "priceChangePercent" {
			return domain.RawSnapshot{}, fmt.Errorf("%w: %s is negative", domain.ErrMalformedSnapshot, names[i])
		}
		vals[i] = v
	}

	return domain.RawSnapshot{
		Symbol:             symbol,
		Price:              vals[0],
		High24h:            vals[1],
		Low24h:             vals[2],
		QuoteVolume:        vals[3],
		PriceChangePercent: vals[4],
	}, nil
}

// number reads a field Binance encodes as a decimal string or a bare JSON
// number.
func number(r gjson.Result) (float64, error) {
	var v float64
	switch r.Type {
	case gjson.String:
		f, err := strconv.ParseFloat(r.Str, 64)
		if err != nil {
			return 0, err
		}
		v = f
	case gjson.Number:
		v = r.Num
	case gjson.Null:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unexpected type %s", r.Type)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite")
	}
	return v, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests, 418:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		if msg := gjson.Get(bodyStr, "msg"); msg.Exists() {
			return fmt.Errorf("%w: HTTP %d: %s", domain.ErrProviderError, statusCode, msg.String())
		}
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
