package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mr1hm/go-disaster-risk/internal/models"
)

// RedisLedger stores entries in a Redis list so several engine instances share
// one history. LPUSH and LTRIM run in one MULTI block to keep the cap exact.
type RedisLedger struct {
	client   redis.UniversalClient
	key      string
	capacity int
}

func NewRedisLedger(client redis.UniversalClient, key string, capacity int) *RedisLedger {
	if capacity < 1 {
		capacity = DefaultCap
	}
	return &RedisLedger{client: client, key: key, capacity: capacity}
}

func (l *RedisLedger) Append(ctx context.Context, e models.HistoryEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, l.key, data)
	pipe.LTrim(ctx, l.key, 0, int64(l.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

func (l *RedisLedger) Recent(ctx context.Context, n int) ([]models.HistoryEntry, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	raw, err := l.client.LRange(ctx, l.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	out := make([]models.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var e models.HistoryEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *RedisLedger) Len(ctx context.Context) (int, error) {
	n, err := l.client.LLen(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("history length: %w", err)
	}
	return int(n), nil
}

func (l *RedisLedger) Cap() int {
	return l.capacity
}
