package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

// LedgerMirror implements domain.LedgerMirror with one hash per active
// signal plus a set indexing the mirrored symbols.
//
// Key schema:
//
//	signal:{symbol} - hash {direction, ref_price, activated_at}, expires with the signal
//	signal:index    - set of symbols with a mirrored signal
type LedgerMirror struct {
	client *Client
}

// NewLedgerMirror creates a LedgerMirror backed by the given Client.
func NewLedgerMirror(c *Client) *LedgerMirror {
	return &LedgerMirror{client: c}
}

func (lm *LedgerMirror) recordKey(symbol string) string { return lm.client.Key("signal", symbol) }
func (lm *LedgerMirror) indexKey() string               { return lm.client.Key("signal", "index") }

// Put writes rec for symbol with the given TTL. A non-positive TTL deletes
// the entry instead, since the record has already expired.
func (lm *LedgerMirror) Put(ctx context.Context, symbol string, rec domain.SignalRecord, ttl time.Duration) error {
	if ttl <= 0 || !rec.Direction.Active() {
		return lm.Delete(ctx, symbol)
	}
	key := lm.recordKey(symbol)
	pipe := lm.client.Underlying().TxPipeline()
	pipe.HSet(ctx, key, encodeRecord(rec))
	pipe.PExpire(ctx, key, ttl)
	pipe.SAdd(ctx, lm.indexKey(), symbol)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put signal %s: %w", symbol, err)
	}
	return nil
}

// Delete removes the mirrored record for symbol.
func (lm *LedgerMirror) Delete(ctx context.Context, symbol string) error {
	pipe := lm.client.Underlying().TxPipeline()
	pipe.Del(ctx, lm.recordKey(symbol))
	pipe.SRem(ctx, lm.indexKey(), symbol)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: delete signal %s: %w", symbol, err)
	}
	return nil
}

// LoadAll returns every mirrored record that has not yet expired. Index
// entries whose hash has expired are pruned.
func (lm *LedgerMirror) LoadAll(ctx context.Context) (map[string]domain.SignalRecord, error) {
	rdb := lm.client.Underlying()
	symbols, err := rdb.SMembers(ctx, lm.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list signals: %w", err)
	}
	if len(symbols) == 0 {
		return map[string]domain.SignalRecord{}, nil
	}

	pipe := rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, sym := range symbols {
		cmds[sym] = pipe.HGetAll(ctx, lm.recordKey(sym))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: load signals pipeline: %w", err)
	}

	out := make(map[string]domain.SignalRecord, len(symbols))
	var gone []interface{}
	for sym, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			gone = append(gone, sym)
			continue
		}
		rec, err := decodeRecord(vals)
		if err != nil {
			gone = append(gone, sym)
			continue
		}
		out[sym] = rec
	}
	if len(gone) > 0 {
		_ = rdb.SRem(ctx, lm.indexKey(), gone...).Err()
	}
	return out, nil
}

func encodeRecord(rec domain.SignalRecord) map[string]interface{} {
	return map[string]interface{}{
		"direction":    string(rec.Direction),
		"ref_price":    strconv.FormatFloat(rec.ReferencePrice, 'f', -1, 64),
		"activated_at": strconv.FormatInt(rec.ActivatedAt.UnixNano(), 10),
	}
}

func decodeRecord(vals map[string]string) (domain.SignalRecord, error) {
	dir := domain.SignalDirection(vals["direction"])
	if !dir.Active() {
		return domain.SignalRecord{}, fmt.Errorf("bad direction %q", vals["direction"])
	}
	price, err := strconv.ParseFloat(vals["ref_price"], 64)
	if err != nil {
		return domain.SignalRecord{}, fmt.Errorf("parse ref_price: %w", err)
	}
	ns, err := strconv.ParseInt(vals["activated_at"], 10, 64)
	if err != nil {
		return domain.SignalRecord{}, fmt.Errorf("parse activated_at: %w", err)
	}
	return domain.SignalRecord{
		Direction:      dir,
		ReferencePrice: price,
		ActivatedAt:    time.Unix(0, ns).UTC(),
	}, nil
}

var _ domain.LedgerMirror = (*LedgerMirror)(nil)
