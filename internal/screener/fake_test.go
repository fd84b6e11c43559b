package screener

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

var errFakeDown = errors.New("fake: provider down")

// fakeSource serves canned snapshots; symbols listed in fail return an error
// and symbols in hang block until the request context ends.
type fakeSource struct {
	mu    sync.Mutex
	snaps map[string]domain.RawSnapshot
	fail  map[string]bool
	hang  map[string]bool
	calls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		snaps: make(map[string]domain.RawSnapshot),
		fail:  make(map[string]bool),
		hang:  make(map[string]bool),
	}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) set(s domain.RawSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[s.Symbol] = s
}

func (f *fakeSource) FetchTicker(ctx context.Context, symbol string) (domain.RawSnapshot, error) {
	f.mu.Lock()
	f.calls++
	snap, ok := f.snaps[symbol]
	fail, hang := f.fail[symbol], f.hang[symbol]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return domain.RawSnapshot{}, ctx.Err()
	}
	if fail || !ok {
		return domain.RawSnapshot{}, errFakeDown
	}
	return snap, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
