package domain

import (
	"context"
	"time"
)

// RawSnapshot is one provider-reported 24h statistics record for a symbol. It
// is immutable once received.
type RawSnapshot struct {
	Symbol             string    `json:"symbol"`
	Price              float64   `json:"price"`
	High24h            float64   `json:"high_24h"`
	Low24h             float64   `json:"low_24h"`
	QuoteVolume        float64   `json:"quote_volume"`
	PriceChangePercent float64   `json:"price_change_percent"`
	FetchedAt          time.Time `json:"fetched_at"`
}

// TickerSource retrieves the 24h ticker for a single symbol from an external
// market-data provider.
type TickerSource interface {
	FetchTicker(ctx context.Context, symbol string) (RawSnapshot, error)
	Name() string
}
