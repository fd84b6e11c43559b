package domain

// Trend is the coarse market direction implied by a sentiment score.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendNeutral Trend = "neutral"
	TrendBearish Trend = "bearish"
)

// MarketSentiment is the market-wide reading recomputed every tick.
type MarketSentiment struct {
	Score    int    `json:"score"`
	Label    string `json:"label"`
	Trend    Trend  `json:"trend"`
	Strength int    `json:"strength"`
}

// NeutralSentiment is reported before any tick has produced metrics.
func NeutralSentiment() MarketSentiment {
	return MarketSentiment{Score: 50, Label: "Neutral", Trend: TrendNeutral}
}
