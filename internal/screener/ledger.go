package screener

import (
	"sync"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

// Ledger holds the active SignalRecord per symbol. A symbol without an entry
// has no active signal. Expiry is evaluated lazily by the persistence step,
// so there is no sweeper.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]domain.SignalRecord
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]domain.SignalRecord)}
}

// Get returns the record for symbol, if one exists.
func (l *Ledger) Get(symbol string) (domain.SignalRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[symbol]
	return rec, ok
}

// Set stores rec for symbol. Neutral records are never stored.
func (l *Ledger) Set(symbol string, rec domain.SignalRecord) {
	if !rec.Direction.Active() {
		l.Clear(symbol)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[symbol] = rec
}

// Clear removes any record for symbol.
func (l *Ledger) Clear(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, symbol)
}

// Snapshot returns a copy of every record currently held.
func (l *Ledger) Snapshot() map[string]domain.SignalRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]domain.SignalRecord, len(l.records))
	for sym, rec := range l.records {
		out[sym] = rec
	}
	return out
}

// Restore seeds the ledger from previously mirrored records, skipping
// neutral entries and those already expired at now. It returns the number of
// records restored.
func (l *Ledger) Restore(records map[string]domain.SignalRecord, now time.Time, ttl time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for sym, rec := range records {
		if !rec.Direction.Active() || rec.Expired(now, ttl) {
			continue
		}
		l.records[sym] = rec
		n++
	}
	return n
}
