package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Event  string
	Symbol string
	Since  *time.Time
}

// Event names used for notifications and audit entries.
const (
	EventSignalActivated = "signal_activated"
	EventSignalCleared   = "signal_cleared"
	EventFeedDown        = "feed_down"
	EventFeedRecovered   = "feed_recovered"
)

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Symbol    string         `json:"symbol,omitempty"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log of signal transitions and
// tick outcomes.
type AuditStore interface {
	Log(ctx context.Context, event, symbol string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
