package domain

import (
	"encoding/json"
	"time"
)

// OrchestratorState is the phase of the screener tick loop.
type OrchestratorState string

const (
	StateIdle      OrchestratorState = "idle"
	StateFetching  OrchestratorState = "fetching"
	StateComputing OrchestratorState = "computing"
	StatePublished OrchestratorState = "published"
)

// TickResult is the outcome of a single tick.
type TickResult string

const (
	TickPublished TickResult = "published"
	TickFailed    TickResult = "failed"
)

// Publication is the per-tick output handed to consumers.
type Publication struct {
	TickID        string          `json:"tick_id"`
	Metrics       []SymbolMetrics `json:"metrics"`
	Sentiment     MarketSentiment `json:"sentiment"`
	FailedSymbols []string        `json:"failed_symbols,omitempty"`
	PublishedAt   time.Time       `json:"published_at"`
}

// TickEvent summarizes a tick for operators, whether it published or failed.
type TickEvent struct {
	TickID        string        `json:"tick_id"`
	Result        TickResult    `json:"result"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	FailedSymbols []string      `json:"failed_symbols,omitempty"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
	At            time.Time     `json:"at"`
}

// FeedStatus is the consumer-visible health of the screener feed.
type FeedStatus struct {
	State               OrchestratorState `json:"state"`
	Degraded            bool              `json:"degraded"`
	Message             string            `json:"message,omitempty"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	LastTickID          string            `json:"last_tick_id,omitempty"`
	LastTickAt          time.Time         `json:"last_tick_at,omitempty"`
	LastPublishedAt     time.Time         `json:"last_published_at,omitempty"`
	NextTickAt          time.Time         `json:"next_tick_at,omitempty"`
}

// Envelope is the frame pushed over the bus and to websocket clients.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Envelope types.
const (
	EnvelopeScreener = "screener"
	EnvelopeSignal   = "signal"
	EnvelopeStatus   = "status"
	EnvelopeTick     = "tick"
)

// NewEnvelope marshals v into an envelope of the given type.
func NewEnvelope(typ string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Data: data})
}
