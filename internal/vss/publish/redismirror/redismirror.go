// Package redismirror implements a subscribe.Publisher that mirrors the
// signal updates the subscription engine delivers (one call per
// subscriber notification) into a Redis key plus a Pub/Sub channel, so other
// broker instances or external consumers can observe current values
// without holding a WebSocket connection open. Grounded on the
// teacher's pubsub.RedisHubEventBus (JSON-marshal-then-Publish
// pattern, instance ID to avoid confusion in logs).
package redismirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"vssbroker/internal/shared/logger"
)

const defaultChannel = "vssbroker:signal:update"

// signalUpdate is the Redis wire shape for one mirrored change.
type signalUpdate struct {
	Path       string `json:"path"`
	Value      any    `json:"value"`
	InstanceID string `json:"instanceId"`
	Timestamp  int64  `json:"timestamp"`
}

// Config configures where updates are mirrored.
type Config struct {
	// KeyPrefix stores the latest value of each path at KeyPrefix+path,
	// e.g. "vssbroker:signal:Vehicle/Speed". Skipped entirely if empty.
	KeyPrefix string
	// Channel is the Pub/Sub channel updates are published to. Defaults
	// to defaultChannel if empty.
	Channel string
	// TTL expires the mirrored key if set; zero means no expiry.
	TTL time.Duration
}

// Publisher implements subscribe.Publisher over a Redis client.
type Publisher struct {
	client     *redis.Client
	cfg        Config
	instanceID string
	log        logger.Interface
}

// New returns a ready Publisher bound to client.
func New(client *redis.Client, cfg Config, log logger.Interface) *Publisher {
	if cfg.Channel == "" {
		cfg.Channel = defaultChannel
	}
	return &Publisher{
		client:     client,
		cfg:        cfg,
		instanceID: uuid.NewString(),
		log:        log,
	}
}

// SendPathValue implements subscribe.Publisher: it sets the latest-value
// key (if configured) and publishes the update for any live subscribers.
func (p *Publisher) SendPathValue(path string, value any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	update := signalUpdate{
		Path:       path,
		Value:      value,
		InstanceID: p.instanceID,
		Timestamp:  time.Now().Unix(),
	}
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("redismirror: marshal: %w", err)
	}

	if p.cfg.KeyPrefix != "" {
		if err := p.client.Set(ctx, p.cfg.KeyPrefix+path, data, p.cfg.TTL).Err(); err != nil {
			p.log.Warnw("redis mirror set failed", "path", path, "error", err)
			return fmt.Errorf("redismirror: set: %w", err)
		}
	}

	if err := p.client.Publish(ctx, p.cfg.Channel, data).Err(); err != nil {
		p.log.Warnw("redis mirror publish failed", "path", path, "error", err)
		return fmt.Errorf("redismirror: publish: %w", err)
	}

	p.log.Debugw("signal mirrored to redis", "path", path)
	return nil
}
