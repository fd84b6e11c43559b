package screener

import (
	"testing"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

func TestVolumeHistoryEvictsOldest(t *testing.T) {
	h := NewVolumeHistory(100)
	for i := 1; i <= 150; i++ {
		h.Append("BTC/USDT", float64(i))
	}
	got := h.Get("BTC/USDT")
	if len(got) != 100 {
		t.Fatalf("len: got %d want 100", len(got))
	}
	if got[0] != 51 || got[99] != 150 {
		t.Fatalf("window: first=%v last=%v", got[0], got[99])
	}
	if len(h.Get("ETH/USDT")) != 0 {
		t.Fatal("unseen symbol should have empty history")
	}
}

func TestVolumeHistoryPeekDoesNotMutate(t *testing.T) {
	h := NewVolumeHistory(3)
	h.Append("X", 1)
	h.Append("X", 2)
	h.Append("X", 3)
	peek := h.Peek("X", 4)
	if len(peek) != 3 || peek[0] != 2 || peek[2] != 4 {
		t.Fatalf("peek: %v", peek)
	}
	if got := h.Get("X"); got[0] != 1 || got[2] != 3 {
		t.Fatalf("peek mutated store: %v", got)
	}
	view := h.Get("X")
	view[0] = 99
	if h.Get("X")[0] != 1 {
		t.Fatal("Get must return a copy")
	}
}

func TestLedgerRestoreSkipsExpired(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	l := NewLedger()
	n := l.Restore(map[string]domain.SignalRecord{
		"A": {Direction: domain.SignalLong, ReferencePrice: 1, ActivatedAt: now.Add(-time.Hour)},
		"B": {Direction: domain.SignalShort, ReferencePrice: 2, ActivatedAt: now.Add(-25 * time.Hour)},
		"C": {Direction: domain.SignalNeutral, ActivatedAt: now},
	}, now, 24*time.Hour)
	if n != 1 {
		t.Fatalf("restored %d want 1", n)
	}
	if _, ok := l.Get("A"); !ok {
		t.Fatal("A should be restored")
	}
	if _, ok := l.Get("B"); ok {
		t.Fatal("B is expired")
	}

	l.Set("D", domain.SignalRecord{Direction: domain.SignalNeutral})
	if _, ok := l.Get("D"); ok {
		t.Fatal("neutral records must not be stored")
	}
	l.Clear("A")
	if len(l.Snapshot()) != 0 {
		t.Fatal("expected empty ledger")
	}
}
