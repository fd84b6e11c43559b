package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/cryptoscreener/internal/domain"
)

// DefaultPublicationTTL keeps the latest board around long enough to survive
// an engine restart.
const DefaultPublicationTTL = 10 * time.Minute

// PublicationCache implements domain.PublicationCache by storing the latest
// publication as JSON at "screener:latest".
type PublicationCache struct {
	client *Client
	ttl    time.Duration
}

// NewPublicationCache creates a PublicationCache backed by the given Client.
func NewPublicationCache(c *Client, ttl time.Duration) *PublicationCache {
	if ttl <= 0 {
		ttl = DefaultPublicationTTL
	}
	return &PublicationCache{client: c, ttl: ttl}
}

func (pc *PublicationCache) key() string { return pc.client.Key("screener", "latest") }

// SetLatest overwrites the cached publication.
func (pc *PublicationCache) SetLatest(ctx context.Context, pub domain.Publication) error {
	data, err := json.Marshal(pub)
	if err != nil {
		return fmt.Errorf("redis: marshal publication %s: %w", pub.TickID, err)
	}
	if err := pc.client.Underlying().Set(ctx, pc.key(), data, pc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set publication %s: %w", pub.TickID, err)
	}
	return nil
}

// GetLatest returns the cached publication or domain.ErrNotFound.
func (pc *PublicationCache) GetLatest(ctx context.Context) (domain.Publication, error) {
	data, err := pc.client.Underlying().Get(ctx, pc.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Publication{}, domain.ErrNotFound
		}
		return domain.Publication{}, fmt.Errorf("redis: get publication: %w", err)
	}
	var pub domain.Publication
	if err := json.Unmarshal(data, &pub); err != nil {
		return domain.Publication{}, fmt.Errorf("redis: unmarshal publication: %w", err)
	}
	return pub, nil
}

var _ domain.PublicationCache = (*PublicationCache)(nil)
