package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// sequenceTTL outlives the day a counter belongs to
const sequenceTTL = 48 * time.Hour

// SequenceStore is the durable counter used when Redis is unavailable
type SequenceStore interface {
	NextSKUSequence(ctx context.Context, shopID, dateCode string) (int64, error)
}

// SKUSequence hands out per-shop, per-day SKU sequence numbers from Redis,
// degrading to the database counter when Redis is missing or failing.
type SKUSequence struct {
	client   *redis.Client
	fallback SequenceStore
	logger   *logrus.Entry
}

// Connect opens a Redis client from a redis:// URL.
// It returns nil when the URL is invalid or the server does not answer, disabling the cache.
func Connect(redisURL string, logger *logrus.Logger) *redis.Client {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.WithError(err).Warn("Invalid REDIS_URL, SKU sequences will use the database")
		return nil
	}
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis unavailable, SKU sequences will use the database")
		client.Close()
		return nil
	}
	return client
}

// NewSKUSequence creates a counter; client may be nil
func NewSKUSequence(client *redis.Client, fallback SequenceStore, logger *logrus.Logger) *SKUSequence {
	return &SKUSequence{
		client:   client,
		fallback: fallback,
		logger:   logger.WithField("component", "sku_sequence"),
	}
}

func (s *SKUSequence) key(shopID, dateCode string) string {
	return fmt.Sprintf("bulkupload:sku:seq:%s:%s", shopID, dateCode)
}

// Next returns the next sequence number for the shop and day
func (s *SKUSequence) Next(ctx context.Context, shopID, dateCode string) (int64, error) {
	if s.client != nil {
		key := s.key(shopID, dateCode)
		pipe := s.client.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, sequenceTTL)
		_, err := pipe.Exec(ctx)
		if err == nil {
			return incr.Val(), nil
		}
		s.logger.WithError(err).WithField("shop_id", shopID).Warn("Redis sequence failed, using database counter")
	}

	if s.fallback == nil {
		return 0, fmt.Errorf("no SKU sequence store available")
	}
	return s.fallback.NextSKUSequence(ctx, shopID, dateCode)
}
