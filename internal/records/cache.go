package records

import (
	"context"
	"encoding/json"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/synset-tree/library/db/sql/kv"
	"github.com/Laisky/synset-tree/library/log"
)

const cacheKeyPrefix = "records"

// CachedQuerier serves repeated intents from a TTL key-value table.
// Cache failures are logged and never fail the query.
type CachedQuerier struct {
	next   Querier
	cache  kv.Interface
	ttl    time.Duration
	logger logSDK.Logger
}

// NewCachedQuerier wraps next with a result cache.
func NewCachedQuerier(next Querier, cache kv.Interface, ttl time.Duration, logger logSDK.Logger) (*CachedQuerier, error) {
	if next == nil {
		return nil, errors.New("next querier cannot be nil")
	}
	if cache == nil {
		return nil, errors.New("cache cannot be nil")
	}
	if ttl <= 0 {
		return nil, errors.Errorf("cache ttl must be positive, got %s", ttl)
	}
	if logger == nil {
		logger = log.Logger.Named("records_cache")
	}

	return &CachedQuerier{next: next, cache: cache, ttl: ttl, logger: logger}, nil
}

func cacheKey(intent Intent) string {
	return kv.HashKey(cacheKeyPrefix, intent.Kind.String(), intent.Term, intent.Parent)
}

// Query returns the cached nodes for intent, or computes and stores them.
func (c *CachedQuerier) Query(ctx context.Context, intent Intent) ([]*Node, error) {
	key := cacheKey(intent)

	item, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var nodes []*Node
		if err := json.Unmarshal([]byte(item.Value), &nodes); err == nil {
			return nodes, nil
		}
		c.logger.Warn("drop undecodable cache item", zap.String("key", key))
	case !errors.Is(err, kv.ErrKeyNotFound):
		c.logger.Warn("read records cache", zap.Error(err), zap.String("key", key))
	}

	nodes, err := c.next.Query(ctx, intent)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	payload, err := json.Marshal(nodes)
	if err != nil {
		c.logger.Warn("encode records for cache", zap.Error(err))
		return nodes, nil
	}
	if err := c.cache.Set(ctx, key, string(payload), c.ttl); err != nil {
		c.logger.Warn("write records cache", zap.Error(err), zap.String("key", key))
	}

	return nodes, nil
}
