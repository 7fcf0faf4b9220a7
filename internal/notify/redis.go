package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisTransport publishes events on Redis so every API replica can fan them
// out to its own connections.
type RedisTransport struct {
	client *redis.Client
	log    *logrus.Entry
}

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{
		client: client,
		log:    logrus.WithField("component", "redis_transport"),
	}
}

func (t *RedisTransport) Publish(ctx context.Context, sessionID string, event Event) error {
	return t.client.Publish(ctx, Channel(sessionID, event), string(event)).Err()
}

// Relay subscribes to every session channel and hands each event to the sinks
// until ctx is done. The subscription is released on return.
func (t *RedisTransport) Relay(ctx context.Context, sinks ...Sink) error {
	pubsub := t.client.PSubscribe(ctx, ChannelPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	t.log.Info("relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			t.log.Info("relay stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			sessionID, event, err := ParseChannel(msg.Channel)
			if err != nil {
				t.log.WithError(err).Warn("dropping message")
				continue
			}
			for _, s := range sinks {
				s.Deliver(sessionID, event)
			}
		}
	}
}
