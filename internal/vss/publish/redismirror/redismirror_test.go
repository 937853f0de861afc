package redismirror

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vssbroker/internal/shared/logger"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})

	return client
}

func TestSendPathValue_SetsKeyAndPublishes(t *testing.T) {
	client := setupTestRedis(t)
	pub := New(client, Config{KeyPrefix: "vssbroker:signal:"}, logger.NewLogger())

	ctx := context.Background()
	sub := client.Subscribe(ctx, defaultChannel)
	defer sub.Close()
	require.NoError(t, sub.Ready(ctx))

	require.NoError(t, pub.SendPathValue("Vehicle/Speed", 42.5))

	raw, err := client.Get(ctx, "vssbroker:signal:Vehicle/Speed").Result()
	require.NoError(t, err)
	var stored signalUpdate
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "Vehicle/Speed", stored.Path)
	assert.InDelta(t, 42.5, stored.Value, 0.001)

	msgCh := sub.Channel()
	select {
	case msg := <-msgCh:
		var published signalUpdate
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &published))
		assert.Equal(t, "Vehicle/Speed", published.Path)
	case <-time.After(time.Second):
		t.Fatal("expected a pub/sub message")
	}
}

func TestSendPathValue_SkipsKeyWhenNoPrefixConfigured(t *testing.T) {
	client := setupTestRedis(t)
	pub := New(client, Config{}, logger.NewLogger())

	require.NoError(t, pub.SendPathValue("Vehicle/Speed", 1))

	exists, err := client.Exists(context.Background(), "vssbroker:signal:Vehicle/Speed").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
