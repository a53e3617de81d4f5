package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/psatyajeet/farcaster-indexer/internal/domain"
)

// DefaultKey is the sorted set holding persisted hashes.
const DefaultKey = "farcaster-indexer:processed"

// Redis is a ledger shared between processes. Hashes live in a sorted set
// scored by the unix time they were recorded; entries older than the
// retention window are trimmed on every write.
type Redis struct {
	client    *redis.Client
	key       string
	retention time.Duration
	now       func() time.Time
}

// NewRedis connects to the Redis server at url (redis://host:port/db) and
// verifies the connection.
func NewRedis(ctx context.Context, url, key string, retention time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if key == "" {
		key = DefaultKey
	}
	return &Redis{
		client:    client,
		key:       key,
		retention: retention,
		now:       time.Now,
	}, nil
}

// Load returns every hash recorded inside the retention window.
func (r *Redis) Load(ctx context.Context) (domain.HashSet, error) {
	from := "-inf"
	if r.retention > 0 {
		from = strconv.FormatInt(r.now().Add(-r.retention).Unix(), 10)
	}

	hashes, err := r.client.ZRangeByScore(ctx, r.key, &redis.ZRangeBy{Min: from, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("load processed hashes: %w", err)
	}
	return domain.NewHashSet(hashes...), nil
}

// Add records hashes and trims expired entries in one round trip.
func (r *Redis) Add(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}

	now := r.now()
	members := make([]redis.Z, len(hashes))
	for i, h := range hashes {
		members[i] = redis.Z{Score: float64(now.Unix()), Member: h}
	}

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, r.key, members...)
	if r.retention > 0 {
		cutoff := now.Add(-r.retention).Unix()
		pipe.ZRemRangeByScore(ctx, r.key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record %d processed hashes: %w", len(hashes), err)
	}
	return nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
