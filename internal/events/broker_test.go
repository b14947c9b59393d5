package events

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	redisclient "github.com/astroline/consult-server-go/internal/redis"
)

// newTestBroker wires a broker to an unreachable redis endpoint. The
// pubsub goroutine retries its connection in the background, which is
// enough to exercise the subscription bookkeeping.
func newTestBroker() *Broker {
	rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	return NewBroker(&redisclient.Client{Client: rc})
}

func subscriptionSignal(b *Broker, channel string) chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subs[channel]
}

func signalled(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestBroker_LastUnsubscribeReleasesChannel(t *testing.T) {
	b := newTestBroker()
	defer b.Close()

	first := b.Subscribe("room:sess-1")
	second := b.Subscribe("room:sess-1")

	done := subscriptionSignal(b, "room:sess-1")
	assert.NotNil(t, done)

	b.Unsubscribe(first)
	assert.False(t, signalled(done))
	assert.Equal(t, 1, b.ClientCount("room:sess-1"))

	b.Unsubscribe(second)
	assert.True(t, signalled(done))
	assert.Equal(t, 0, b.ClientCount("room:sess-1"))
	assert.Nil(t, subscriptionSignal(b, "room:sess-1"))
}

func TestBroker_ResubscribeStartsSingleFreshSubscription(t *testing.T) {
	b := newTestBroker()
	defer b.Close()

	first := b.Subscribe("room:sess-1")
	firstDone := subscriptionSignal(b, "room:sess-1")
	b.Unsubscribe(first)

	second := b.Subscribe("room:sess-1")
	secondDone := subscriptionSignal(b, "room:sess-1")

	// The retired subscription is signalled away and the new client
	// rides exactly one live subscription, so a broadcast reaches each
	// connection at most once.
	assert.True(t, signalled(firstDone))
	assert.NotNil(t, secondDone)
	assert.False(t, signalled(secondDone))
	assert.Equal(t, 1, b.ClientCount("room:sess-1"))

	event := Event{Type: TypeMinuteBilled}
	b.broadcast("room:sess-1", event)
	assert.Len(t, second.Events, 1)

	b.Unsubscribe(second)
}

func TestBroker_IndependentChannelsKeepTheirSubscriptions(t *testing.T) {
	b := newTestBroker()
	defer b.Close()

	room := b.Subscribe("room:sess-1")
	astro := b.Subscribe("astro:astro-1")

	b.Unsubscribe(room)

	astroDone := subscriptionSignal(b, "astro:astro-1")
	assert.NotNil(t, astroDone)
	assert.False(t, signalled(astroDone))
	assert.Equal(t, 1, b.ClientCount("astro:astro-1"))

	b.Unsubscribe(astro)
}
