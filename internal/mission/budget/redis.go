package budget

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// maxRedisSamples caps each list so that the store does not grow unbounded.
const maxRedisSamples = 1000

// RedisStore shares samples between engines through Redis lists.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps client; keys are "{prefix}:{kind}".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "houston:budget"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(kind Kind) string {
	return fmt.Sprintf("%s:%s", s.prefix, kind)
}

func (s *RedisStore) Samples(ctx context.Context, kind Kind, window int) ([]float64, error) {
	stop := int64(window) - 1
	if window <= 0 {
		stop = -1
	}
	raw, err := s.client.LRange(ctx, s.key(kind), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]float64, 0, len(raw))
	for _, r := range raw {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt sample %q: %w", r, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *RedisStore) Append(ctx context.Context, kind Kind, values ...float64) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	key := s.key(kind)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, args...)
		pipe.LTrim(ctx, key, 0, maxRedisSamples-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
