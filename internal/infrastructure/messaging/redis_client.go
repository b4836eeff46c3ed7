package messaging

import (
	"context"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	rediscache "github.com/skillpath/skillpath-hub/internal/infrastructure/persistence/redis"
)

// CacheClient adapts the Redis cache to RedisClient. Channel names are
// namespaced with the cache key prefix.
type CacheClient struct {
	cache *rediscache.Cache

	mu   sync.Mutex
	subs []*goredis.PubSub
}

// NewCacheClient creates a RedisClient over cache.
func NewCacheClient(cache *rediscache.Cache) *CacheClient {
	return &CacheClient{cache: cache}
}

// Publish implements RedisClient.
func (c *CacheClient) Publish(ctx context.Context, channel string, message []byte) error {
	return c.cache.Client().Publish(ctx, c.cache.Channel(channel), message).Err()
}

// Subscribe implements RedisClient. The returned channel closes when ctx is
// cancelled or the subscription is closed.
func (c *CacheClient) Subscribe(ctx context.Context, channel string) (<-chan RedisMessage, error) {
	sub := c.cache.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	out := make(chan RedisMessage)
	go func() {
		defer close(out)
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the subscriptions opened through this client. The cache
// itself stays open.
func (c *CacheClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, sub := range c.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.subs = nil
	return firstErr
}

var _ RedisClient = (*CacheClient)(nil)
