package domain

import (
	"context"
	"time"
)

// PublicationCache holds the most recent publication so API-only replicas can
// serve the board without running the engine.
type PublicationCache interface {
	SetLatest(ctx context.Context, pub Publication) error
	GetLatest(ctx context.Context) (Publication, error)
}

// LedgerMirror mirrors active signal records to shared storage. Entries are
// written with a TTL equal to their remaining validity.
type LedgerMirror interface {
	Put(ctx context.Context, symbol string, rec SignalRecord, ttl time.Duration) error
	Delete(ctx context.Context, symbol string) error
	LoadAll(ctx context.Context) (map[string]SignalRecord, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
	StreamRecent(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}

// Bus channels and streams used by the screener.
const (
	ChannelScreener = "ch:screener"
	ChannelSignal   = "ch:signal"
	ChannelStatus   = "ch:status"
	StreamEvents    = "screener:events"
)
