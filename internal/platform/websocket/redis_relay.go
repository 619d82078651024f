package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRelayChannel is the pub/sub channel shared by all server instances.
const DefaultRelayChannel = "medcare:events"

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisRelay fans events out to every instance through Redis pub/sub. Each
// instance runs one subscriber that feeds its local hub, so Publish does not
// deliver locally unless Redis is unavailable.
type RedisRelay struct {
	hub     *Hub
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

func NewRedisRelay(hub *Hub, client *redis.Client, channel string, logger zerolog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{hub: hub, client: client, channel: channel, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.hub.Deliver(event)
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes and forwards messages to the local hub until ctx is
// cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	r.logger.Info().Str("channel", r.channel).Msg("websocket relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handleMessage(msg.Payload)
		}
	}
}

func (r *RedisRelay) handleMessage(payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		r.logger.Warn().Err(err).Msg("discarding malformed relay message")
		return
	}
	r.hub.Deliver(event)
}
