package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

const (
	rankZSetKey = "rank:balances" // session id scored by final balance
	rankHashKey = "rank:entries"  // session id -> serialized RankEntry
)

// RankCache implements domain.RankCache with a Redis sorted set over final
// balances plus a hash holding the full entry per session. Balances well
// above float64's integer precision would need a different score encoding;
// KRW game balances stay far below that.
type RankCache struct {
	rdb *redis.Client
}

// NewRankCache creates a RankCache backed by the given Client.
func NewRankCache(c *Client) *RankCache {
	return &RankCache{rdb: c.Underlying()}
}

// Record inserts or updates one leaderboard entry.
func (rc *RankCache) Record(ctx context.Context, entry domain.RankEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis: marshal rank entry: %w", err)
	}
	score, _ := entry.FinalBalance.Float64()

	pipe := rc.rdb.TxPipeline()
	pipe.ZAdd(ctx, rankZSetKey, redis.Z{Score: score, Member: entry.SessionID})
	pipe.HSet(ctx, rankHashKey, entry.SessionID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: record rank %s: %w", entry.SessionID, err)
	}
	return nil
}

// Top returns the n best entries, highest balance first, with ranks filled
// in starting at 1.
func (rc *RankCache) Top(ctx context.Context, n int) ([]domain.RankEntry, error) {
	if n < 1 {
		return nil, nil
	}

	ids, err := rc.rdb.ZRevRange(ctx, rankZSetKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: rank top: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raw, err := rc.rdb.HMGet(ctx, rankHashKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: rank entries: %w", err)
	}

	entries := make([]domain.RankEntry, 0, len(ids))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue // zset/hash drifted apart, skip the orphan
		}
		var entry domain.RankEntry
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			continue
		}
		entry.Rank = i + 1
		entries = append(entries, entry)
	}
	return entries, nil
}

// Invalidate drops the cached leaderboard entirely. The next read repopulates
// it from the score store.
func (rc *RankCache) Invalidate(ctx context.Context) error {
	if err := rc.rdb.Del(ctx, rankZSetKey, rankHashKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate rank: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RankCache = (*RankCache)(nil)
