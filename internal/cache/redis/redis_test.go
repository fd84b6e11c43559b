package redis

import (
	"testing"
	"time"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

func TestJoinKey(t *testing.T) {
	if got := joinKey("", "signal", "BTC/USDT"); got != "signal:BTC/USDT" {
		t.Fatalf("got %q", got)
	}
	if got := joinKey("prod", "lock", "screener:tick"); got != "prod:lock:screener:tick" {
		t.Fatalf("got %q", got)
	}
}

func TestRecordEncoding(t *testing.T) {
	at := time.Date(2026, 4, 2, 9, 30, 0, 123, time.UTC)
	rec := domain.SignalRecord{Direction: domain.SignalShort, ReferencePrice: 0.000123, ActivatedAt: at}

	enc := encodeRecord(rec)
	vals := make(map[string]string, len(enc))
	for k, v := range enc {
		vals[k] = v.(string)
	}
	got, err := decodeRecord(vals)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Direction != rec.Direction || got.ReferencePrice != rec.ReferencePrice || !got.ActivatedAt.Equal(at) {
		t.Fatalf("got %+v want %+v", got, rec)
	}

	vals["direction"] = string(domain.SignalNeutral)
	if _, err := decodeRecord(vals); err == nil {
		t.Fatal("neutral records must not decode")
	}
}

func TestOptionsFromURL(t *testing.T) {
	opts, err := options(ClientConfig{Addr: "rediss://:secret@cache.internal:6380/2", PoolSize: 7})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache.internal:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("url not applied: addr=%s db=%d", opts.Addr, opts.DB)
	}
	if opts.TLSConfig == nil || opts.PoolSize != 7 {
		t.Fatalf("tls=%v pool=%d", opts.TLSConfig != nil, opts.PoolSize)
	}

	opts, err = options(ClientConfig{Addr: "localhost:6379", Password: "pw", TLSEnabled: true})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.Password != "pw" || opts.TLSConfig == nil {
		t.Fatalf("plain addr options: %+v", opts)
	}
}
