package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInflightQoS1(t *testing.T) {
	f := NewInflight(NewPacketIDs())
	id, err := f.Track(delivery("x", 1))
	require.NoError(t, err)

	phase, ok := f.Phase(id)
	require.True(t, ok)
	assert.Equal(t, Sent, phase)

	assert.ErrorIs(t, f.Receive(id), ErrUnexpectedAck, "PUBREC is not valid for QoS 1")
	require.NoError(t, f.Ack(id))
	assert.ErrorIs(t, f.Ack(id), ErrUnexpectedAck)
	assert.Equal(t, 0, f.Len())
}

func TestInflightQoS2(t *testing.T) {
	ids := NewPacketIDs()
	f := NewInflight(ids)
	id, err := f.Track(delivery("x", 2))
	require.NoError(t, err)

	assert.ErrorIs(t, f.Ack(id), ErrUnexpectedAck)
	assert.ErrorIs(t, f.Complete(id), ErrUnexpectedAck, "PUBCOMP before PUBREC")

	require.NoError(t, f.Receive(id))
	phase, _ := f.Phase(id)
	assert.Equal(t, Received, phase)

	require.NoError(t, f.Release(id))
	phase, _ = f.Phase(id)
	assert.Equal(t, Released, phase)

	require.NoError(t, f.Complete(id))
	_, ok := f.Phase(id)
	assert.False(t, ok)
	assert.Equal(t, 0, ids.InUse())
}

func TestInflightReset(t *testing.T) {
	ids := NewPacketIDs()
	f := NewInflight(ids)
	_, _ = f.Track(delivery("a", 1))
	_, _ = f.Track(delivery("b", 2))

	assert.Equal(t, 2, f.Reset())
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 0, ids.InUse())
}
