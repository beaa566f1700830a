package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const publishTimeout = 2 * time.Second

// RedisPublisher publishes events as JSON on a Redis channel. Delivery is
// best-effort: publication runs on a detached goroutine with its own timeout
// and failures are logged, never returned.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) {
	go func() {
		// Detached from the caller's context so a finished request cannot
		// cancel the publish.
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		data, err := json.Marshal(event)
		if err != nil {
			log.WithFields(log.Fields{
				"event":  event.Name,
				"tenant": event.TenantID,
			}).WithError(err).Warn("event marshal failed")
			return
		}

		if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
			log.WithFields(log.Fields{
				"event":   event.Name,
				"tenant":  event.TenantID,
				"channel": p.channel,
			}).WithError(err).Warn("event publish failed")
		}
	}()
}
