package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

func TestFetchTickerMapping(t *testing.T) {
	var gotSymbol string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		gotSymbol = r.URL.Query().Get("symbol")
		_, _ = w.Write([]byte(`{
			"symbol": "BTCUSDT",
			"priceChangePercent": "2.600",
			"lastPrice": "50000.00",
			"highPrice": "51000.00",
			"lowPrice": "49000.00",
			"quoteVolume": "1000000.50"
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	snap, err := c.FetchTicker(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotSymbol != "BTCUSDT" {
		t.Fatalf("symbol param: got %q", gotSymbol)
	}
	if snap.Symbol != "BTC/USDT" {
		t.Fatalf("symbol: got %q", snap.Symbol)
	}
	if snap.Price != 50000 || snap.High24h != 51000 || snap.Low24h != 49000 {
		t.Fatalf("prices: %+v", snap)
	}
	if snap.QuoteVolume != 1000000.5 || snap.PriceChangePercent != 2.6 {
		t.Fatalf("volume/change: %+v", snap)
	}
	if snap.FetchedAt.IsZero() {
		t.Fatal("fetched_at not set")
	}
}

func TestFetchTickerFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"error payload", 400, `{"code":-1121,"msg":"Invalid symbol."}`, domain.ErrProviderError},
		{"error payload 200", 200, `{"code":-1003,"msg":"Too many requests"}`, domain.ErrProviderError},
		{"rate limited", 429, `{}`, domain.ErrRateLimited},
		{"missing field", 200, `{"lastPrice":"1","highPrice":"1","lowPrice":"1","quoteVolume":"1"}`, domain.ErrMalformedSnapshot},
		{"bad number", 200, `{"lastPrice":"abc","highPrice":"1","lowPrice":"1","quoteVolume":"1","priceChangePercent":"0"}`, domain.ErrMalformedSnapshot},
		{"negative price", 200, `{"lastPrice":"-1","highPrice":"1","lowPrice":"1","quoteVolume":"1","priceChangePercent":"0"}`, domain.ErrMalformedSnapshot},
		{"not json", 200, `<html>`, domain.ErrMalformedSnapshot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).FetchTicker(context.Background(), "ETH/USDT")
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFetchTickerHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := NewClient(srv.URL).FetchTicker(ctx, "BTC/USDT"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestExchangeSymbol(t *testing.T) {
	for in, want := range map[string]string{
		"BTC/USDT": "BTCUSDT",
		"eth-usdt": "ETHUSDT",
		"SOLUSDT":  "SOLUSDT",
	} {
		if got := ExchangeSymbol(in); got != want {
			t.Errorf("ExchangeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}
