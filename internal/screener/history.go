package screener

import "sync"

// DefaultHistorySize is the number of volume samples retained per symbol.
const DefaultHistorySize = 100

// VolumeHistory keeps a bounded, insertion-ordered sequence of volume samples
// per symbol. Append is the only mutation; the oldest sample is evicted once a
// symbol's sequence exceeds the capacity.
type VolumeHistory struct {
	mu       sync.RWMutex
	capacity int
	samples  map[string][]float64
}

// NewVolumeHistory returns an empty store that keeps at most capacity samples
// per symbol. A non-positive capacity falls back to DefaultHistorySize.
func NewVolumeHistory(capacity int) *VolumeHistory {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &VolumeHistory{
		capacity: capacity,
		samples:  make(map[string][]float64),
	}
}

// Append pushes volume onto the symbol's sequence and returns a copy of the
// updated window.
func (h *VolumeHistory) Append(symbol string, volume float64) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	next := h.appended(h.samples[symbol], volume)
	h.samples[symbol] = next
	return clone(next)
}

// Peek returns the window Append would produce without storing it.
func (h *VolumeHistory) Peek(symbol string, volume float64) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.appended(clone(h.samples[symbol]), volume)
}

// Get returns a read-only copy of the symbol's current window. The result is
// empty for a symbol that has never been observed.
func (h *VolumeHistory) Get(symbol string) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return clone(h.samples[symbol])
}

// Len returns the number of samples held for symbol.
func (h *VolumeHistory) Len(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples[symbol])
}

func (h *VolumeHistory) appended(window []float64, volume float64) []float64 {
	window = append(window, volume)
	if over := len(window) - h.capacity; over > 0 {
		// Shift instead of reslicing so the backing array does not grow forever.
		copy(window, window[over:])
		window = window[:h.capacity]
	}
	return window
}

func clone(s []float64) []float64 {
	if len(s) == 0 {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
