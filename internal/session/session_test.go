package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/life-stream-dev/lifestream-broker/internal/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delivery(payload string, qos byte) Delivery {
	return Delivery{
		ClientID: "c1",
		Message:  topic.Message{Topic: "a/b", Payload: []byte(payload), QoS: qos},
		QoS:      qos,
	}
}

func TestQueue(t *testing.T) {
	t.Run("fifo", func(t *testing.T) {
		q := NewQueue(10)
		for i := 0; i < 3; i++ {
			assert.False(t, q.Push(delivery(fmt.Sprint(i), 0)))
		}
		drained := q.Drain()
		require.Len(t, drained, 3)
		for i, d := range drained {
			assert.Equal(t, fmt.Sprint(i), string(d.Message.Payload))
		}
		assert.Equal(t, 0, q.Len())
	})

	t.Run("drop oldest on overflow", func(t *testing.T) {
		q := NewQueue(2)
		q.Push(delivery("1", 0))
		q.Push(delivery("2", 0))
		assert.True(t, q.Push(delivery("3", 0)))

		drained := q.Drain()
		require.Len(t, drained, 2)
		assert.Equal(t, "2", string(drained[0].Message.Payload))
		assert.Equal(t, "3", string(drained[1].Message.Payload))
	})

	t.Run("push front keeps order and bound", func(t *testing.T) {
		q := NewQueue(3)
		q.Push(delivery("new", 0))
		q.PushFront([]Delivery{delivery("old1", 0), delivery("old2", 0), delivery("old3", 0)})

		drained := q.Drain()
		require.Len(t, drained, 3)
		assert.Equal(t, "old2", string(drained[0].Message.Payload))
		assert.Equal(t, "old3", string(drained[1].Message.Payload))
		assert.Equal(t, "new", string(drained[2].Message.Payload))
	})

	t.Run("default limit", func(t *testing.T) {
		assert.Equal(t, DefaultQueueLimit, NewQueue(0).Limit())
	})
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := New("c1", false, 2, 10, now.Add(-10*time.Second))
	assert.True(t, s.Expired(now, 1.5))

	s.LastActivity = now.Add(-2 * time.Second)
	assert.False(t, s.Expired(now, 1.5))

	s.LastActivity = now.Add(-time.Hour)
	s.KeepAlive = 0
	assert.False(t, s.Expired(now, 1.5), "keepalive 0 disables the check")

	s.KeepAlive = 2
	s.State = Disconnected
	assert.False(t, s.Expired(now, 1.5))
}

func TestSessionSubscriptions(t *testing.T) {
	s := New("c1", true, 0, 10, time.Now())
	s.AddSubscription("a/+", 0)
	s.AddSubscription("a/+", 2)
	assert.Equal(t, map[string]byte{"a/+": 2}, s.Subscriptions)
	assert.True(t, s.RemoveSubscription("a/+"))
	assert.False(t, s.RemoveSubscription("a/+"))
}

func TestStore(t *testing.T) {
	store := NewStore()
	store.Save(New("1", true, 0, 10, time.Now()))
	store.Save(New("2", false, 0, 10, time.Now()))
	store.Save(New("3", false, 0, 10, time.Now()))

	_, ok := store.Get("2")
	require.True(t, ok)

	store.Delete("1")
	_, ok = store.Get("1")
	assert.False(t, ok)
	assert.Equal(t, 2, store.Len())

	s3, _ := store.Get("3")
	s3.State = Disconnected
	assert.Equal(t, 1, store.CountByState(Connected))
	assert.Equal(t, 1, store.CountByState(Disconnected))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CONNECTED", Connected.String())
	assert.Equal(t, "DISCONNECTED_PERSISTED", Disconnected.String())
	assert.Equal(t, "ABSENT", State(0).String())
}
