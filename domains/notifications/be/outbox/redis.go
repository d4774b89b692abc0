package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/dispatcher"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

const (
	fieldNotificationID = "notification_id"
	fieldUserID         = "user_id"
)

// RedisConfig names the stream and consumer identity.
type RedisConfig struct {
	Stream   string
	Group    string
	Consumer string
	// Block bounds a single XREADGROUP call.
	Block time.Duration
	Count int64
	// MaxLen caps the stream length approximately; zero keeps everything.
	MaxLen int64
}

// RedisOutbox is a Redis Streams outbox with a consumer group.
type RedisOutbox struct {
	client  *redis.Client
	cfg     RedisConfig
	drained atomic.Bool
}

// NewRedisOutbox constructs the outbox. Call EnsureGroup before reading.
func NewRedisOutbox(client *redis.Client, cfg RedisConfig) *RedisOutbox {
	if client == nil {
		panic("redis client is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "notifications:outbox"
	}
	if cfg.Group == "" {
		cfg.Group = "notification-dispatchers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "dispatcher-" + uuid.NewString()[:8]
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 50
	}
	return &RedisOutbox{client: client, cfg: cfg}
}

// EnsureGroup creates the stream and consumer group if they do not exist yet.
func (o *RedisOutbox) EnsureGroup(ctx context.Context) error {
	err := o.client.XGroupCreateMkStream(ctx, o.cfg.Stream, o.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", o.cfg.Group, err)
	}
	return nil
}

func (o *RedisOutbox) Publish(ctx context.Context, intent service.Intent) error {
	args := &redis.XAddArgs{
		Stream: o.cfg.Stream,
		Values: map[string]interface{}{
			fieldNotificationID: intent.NotificationID.String(),
			fieldUserID:         intent.UserID.String(),
		},
	}
	if o.cfg.MaxLen > 0 {
		args.MaxLen = o.cfg.MaxLen
		args.Approx = true
	}
	return o.client.XAdd(ctx, args).Err()
}

// Read first drains entries this consumer left unacked before a restart, then blocks for new ones.
func (o *RedisOutbox) Read(ctx context.Context) ([]dispatcher.Delivery, error) {
	if !o.drained.Load() {
		pending, err := o.read(ctx, "0", 0)
		if err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			return pending, nil
		}
		o.drained.Store(true)
	}
	return o.read(ctx, ">", o.cfg.Block)
}

func (o *RedisOutbox) read(ctx context.Context, start string, block time.Duration) ([]dispatcher.Delivery, error) {
	args := &redis.XReadGroupArgs{
		Group:    o.cfg.Group,
		Consumer: o.cfg.Consumer,
		Streams:  []string{o.cfg.Stream, start},
		Count:    o.cfg.Count,
		Block:    block,
	}
	if block == 0 {
		// A zero Block means wait forever in XREADGROUP; negative omits the option.
		args.Block = -1
	}

	streams, err := o.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var out []dispatcher.Delivery
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			out = append(out, toDelivery(msg))
		}
	}
	return out, nil
}

func (o *RedisOutbox) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return o.client.XAck(ctx, o.cfg.Stream, o.cfg.Group, ids...).Err()
}

func toDelivery(msg redis.XMessage) dispatcher.Delivery {
	d := dispatcher.Delivery{ID: msg.ID}
	if raw, ok := msg.Values[fieldNotificationID].(string); ok {
		d.Intent.NotificationID, _ = uuid.Parse(raw)
	}
	if raw, ok := msg.Values[fieldUserID].(string); ok {
		d.Intent.UserID, _ = uuid.Parse(raw)
	}
	return d
}

var _ dispatcher.Source = (*RedisOutbox)(nil)
