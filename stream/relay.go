package stream

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultChannel is the Redis channel board events are relayed on.
const DefaultChannel = "board-updates"

type envelope struct {
	Topic string `json:"topic"`
	Event Event  `json:"event"`
}

// Relay publishes events through Redis pub/sub so that subscribers connected
// to any instance receive them. Without a Redis client it delivers to the
// local hub directly.
type Relay struct {
	hub     *Hub
	client  *redis.Client
	channel string
	logger  *log.Logger
}

// NewRelay creates a relay for hub. client may be nil.
func NewRelay(hub *Hub, client *redis.Client, channel string, logger *log.Logger) *Relay {
	if hub == nil {
		panic("stream.NewRelay: hub is nil")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Relay{hub: hub, client: client, channel: channel, logger: logger}
}

// Hub returns the local hub.
func (r *Relay) Hub() *Hub { return r.hub }

// Publish sends ev to the subscribers of topic.
func (r *Relay) Publish(ctx context.Context, topic string, ev Event) error {
	if r.client == nil {
		r.hub.Broadcast(topic, ev)
		return nil
	}
	data, err := sonic.Marshal(envelope{Topic: topic, Event: ev})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run forwards relayed events to the local hub until ctx is cancelled. It
// resubscribes when the pub/sub connection drops.
func (r *Relay) Run(ctx context.Context) {
	if r.client == nil {
		return
	}
	for {
		sub := r.client.Subscribe(ctx, r.channel)
		r.consume(ctx, sub.Channel())
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (r *Relay) consume(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := sonic.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.WithError(err).Error("unable to parse relayed event")
				continue
			}
			if env.Topic == "" {
				r.logger.Warnf("relayed event without topic on %s - ignoring it", r.channel)
				continue
			}
			r.hub.Broadcast(env.Topic, env.Event)
		}
	}
}
