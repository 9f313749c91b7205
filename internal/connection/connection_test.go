package connection

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := NewConnection(server)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4)
		_, _ = io.ReadFull(client, buf)
		done <- buf
	}()

	require.NoError(t, conn.Send([]byte{0xD0, 0x00, 0xC0, 0x00}))
	assert.Equal(t, []byte{0xD0, 0x00, 0xC0, 0x00}, <-done)

	conn.Close()
	conn.Close()
	assert.Error(t, conn.Send([]byte{0x00}))
}

func TestConnectionManager(t *testing.T) {
	cm := NewConnectionManager()
	server, client := net.Pipe()
	defer client.Close()

	conn := NewConnection(server)
	conn.SetClientID("c1")
	require.True(t, cm.AddConnection(conn))
	assert.Equal(t, 1, cm.Len())

	got, ok := cm.GetConnection(conn.ConnID)
	require.True(t, ok)
	assert.Equal(t, "c1", got.ClientID())

	cm.CloseAll()
	_, err := client.Read(make([]byte, 1))
	assert.Error(t, err)

	other, peer := net.Pipe()
	defer peer.Close()
	assert.False(t, cm.AddConnection(NewConnection(other)))

	cm.RemoveConnection(conn.ConnID)
	assert.Equal(t, 0, cm.Len())
}

func TestIsNetClosedError(t *testing.T) {
	assert.True(t, IsNetClosedError(net.ErrClosed))
	assert.False(t, IsNetClosedError(io.EOF))
}
