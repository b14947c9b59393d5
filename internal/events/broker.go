package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/astroline/consult-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second

	clientBufferSize = 100
)

// Client is one SSE connection's view of a channel subscription.
type Client struct {
	Channel string
	Events  chan Event
	Done    chan struct{}
}

// Publisher is the narrow interface services use to fan events out.
// Delivery is best-effort, at-most-once per connection; a failed
// publish never affects the billing state that triggered it.
type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

// Broker bridges Redis pub/sub channels to in-process SSE clients.
// Channels are keyed (room:<sessionID>, astro:<id>, user:<id>); one
// Redis subscription is shared by all local clients of a channel.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // channel -> set of clients
	subs    map[string]chan struct{}    // channel -> teardown signal for its redis subscription
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

var _ Publisher = (*Broker)(nil)

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		subs:    make(map[string]chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(channel string) *Client {
	client := &Client{
		Channel: channel,
		Events:  make(chan Event, clientBufferSize),
		Done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[channel] == nil {
		b.clients[channel] = make(map[*Client]bool)
		done := make(chan struct{})
		b.subs[channel] = done
		go b.subscribeToRedis(channel, done)
	}
	b.clients[channel][client] = true
	clientCount := len(b.clients[channel])
	b.mu.Unlock()

	log.Info().
		Str("channel", channel).
		Int("clientCount", clientCount).
		Msg("event client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.Channel]; ok {
		delete(clients, client)
		close(client.Done)

		// Channels are per-session; the redis subscription is torn
		// down with the last client so a resubscribe starts exactly
		// one fresh subscription.
		if len(clients) == 0 {
			delete(b.clients, client.Channel)
			if done, ok := b.subs[client.Channel]; ok {
				close(done)
				delete(b.subs, client.Channel)
			}
		}

		log.Info().
			Str("channel", client.Channel).
			Int("clientCount", len(clients)).
			Msg("event client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(channel string, done <-chan struct{}) {
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case <-done:
			log.Debug().
				Str("channel", channel).
				Msg("redis pubsub released")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(channel, event)
		}
	}
}

func (b *Broker) broadcast(channel string, event Event) {
	b.mu.RLock()
	clients := b.clients[channel]
	b.mu.RUnlock()

	for client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("channel", channel).
				Str("eventType", event.Type).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.subs = make(map[string]chan struct{})
}

func (b *Broker) ClientCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[channel])
}
