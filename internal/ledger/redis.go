package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultStatsKey is the hash holding per-outcome counters.
const DefaultStatsKey = "texsvg:render:outcomes"

// totalField counts every recorded job.
const totalField = "total"

// RedisRecorder keeps running outcome counters in a Redis hash.
type RedisRecorder struct {
	rdb redis.Cmdable
	key string
}

func NewRedisRecorder(rdb redis.Cmdable, key string) *RedisRecorder {
	if key == "" {
		key = DefaultStatsKey
	}
	return &RedisRecorder{rdb: rdb, key: key}
}

func (r *RedisRecorder) Record(ctx context.Context, e Entry) error {
	pipe := r.rdb.TxPipeline()
	pipe.HIncrBy(ctx, r.key, e.Outcome, 1)
	pipe.HIncrBy(ctx, r.key, totalField, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("incrementing %s: %w", e.Outcome, err)
	}
	return nil
}

// Stats returns the counters; a missing hash yields an empty map.
func (r *RedisRecorder) Stats(ctx context.Context) (map[string]int64, error) {
	raw, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.key, err)
	}
	return parseCounts(raw)
}

func parseCounts(raw map[string]string) (map[string]int64, error) {
	out := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counter %q: %w", field, err)
		}
		out[field] = n
	}
	return out, nil
}
