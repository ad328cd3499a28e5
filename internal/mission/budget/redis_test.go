package budget

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("HOUSTON_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HOUSTON_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	s := NewRedisStore(client, "houston:test:"+t.Name())
	defer s.Close()
	defer client.Del(ctx, s.key(Battery), s.key(Time))

	require.NoError(t, s.Append(ctx, Battery, 0.04, 0.05, 0.06))
	got, err := s.Samples(ctx, Battery, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.06, 0.05}, got)

	empty, err := s.Samples(ctx, Time, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
