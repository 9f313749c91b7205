package packet

import (
	"bytes"
	"testing"

	"github.com/life-stream-dev/lifestream-broker/internal/mqtt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func read(t *testing.T, raw []byte) *mqtt.Packet {
	t.Helper()
	packet, err := mqtt.ReadPacket(bytes.NewReader(raw), 0)
	require.NoError(t, err)
	return packet
}

func field(s string) FieldPayload {
	return FieldPayload{PayloadLength: len(s), Payload: []byte(s)}
}

func TestConnectPacket(t *testing.T) {
	raw := NewConnectPacket(&ConnectPacketPayloads{
		ConnectFlag: ConnectPacketFlag{
			UsernameFlag:    true,
			PasswordFlag:    true,
			WillRetain:      true,
			WillQoS:         1,
			WillMessageFlag: true,
		},
		ClientIdentifier:   field("sensor-1"),
		UsernamePayload:    field("user"),
		PasswordPayload:    field("pass"),
		WillMessageTopic:   field("status/sensor-1"),
		WillMessageContent: field("offline"),
		KeepAlive:          30,
	})

	result, resp, err := ParseConnectPacket(read(t, raw))
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, "sensor-1", result.ClientID())
	assert.Equal(t, uint16(30), result.KeepAlive)
	assert.False(t, result.ConnectFlag.CleanSession)
	assert.True(t, result.ConnectFlag.WillRetain)
	assert.Equal(t, byte(1), result.ConnectFlag.WillQoS)
	assert.Equal(t, "status/sensor-1", string(result.WillMessageTopic.Payload))
	assert.Equal(t, "offline", string(result.WillMessageContent.Payload))
	assert.Equal(t, "user", string(result.UsernamePayload.Payload))
	assert.Equal(t, "pass", string(result.PasswordPayload.Payload))
}

func TestConnectPacketRejections(t *testing.T) {
	raw := NewConnectPacket(&ConnectPacketPayloads{ConnectFlag: ConnectPacketFlag{CleanSession: false}})
	_, resp, err := ParseConnectPacket(read(t, raw))
	assert.Error(t, err)
	assert.Equal(t, NewConnectAckPacket(false, IdentifierRejected), resp)

	raw = NewConnectPacket(&ConnectPacketPayloads{ConnectFlag: ConnectPacketFlag{CleanSession: true}})
	result, resp, err := ParseConnectPacket(read(t, raw))
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Empty(t, result.ClientID())

	// 协议版本 3
	raw[8] = 0x03
	_, resp, err = ParseConnectPacket(read(t, raw))
	assert.Error(t, err)
	assert.Equal(t, NewConnectAckPacket(false, UnacceptableProtocol), resp)

	raw = NewConnectPacket(&ConnectPacketPayloads{ConnectFlag: ConnectPacketFlag{CleanSession: true, WillQoS: 1}})
	_, _, err = ParseConnectPacket(read(t, raw))
	assert.ErrorIs(t, err, mqtt.ErrMalformedPacket, "will QoS without will flag")

	raw = NewConnectPacket(&ConnectPacketPayloads{ConnectFlag: ConnectPacketFlag{CleanSession: true, PasswordFlag: true}, PasswordPayload: field("x")})
	_, _, err = ParseConnectPacket(read(t, raw))
	assert.ErrorIs(t, err, mqtt.ErrMalformedPacket, "password without username")
}

func TestConnectAck(t *testing.T) {
	assert.Equal(t, []byte{0x20, 0x02, 0x01, 0x00}, NewConnectAckPacket(true, Accepted))
	assert.Equal(t, []byte{0x20, 0x02, 0x00, 0x00}, NewConnectAckPacket(false, Accepted))
	assert.Equal(t, []byte{0x20, 0x02, 0x00, 0x05}, NewConnectAckPacket(true, NotAuthorized))
}

func TestPublishPacket(t *testing.T) {
	tests := []PublishPacketPayloads{
		{TopicName: "a/b", Payload: []byte("hello")},
		{PacketFlag: PublishPacketFlag{QoS: 1, Retain: true}, TopicName: "home/temp", PacketID: 7, Payload: []byte("20")},
		{PacketFlag: PublishPacketFlag{QoS: 2, DupFlag: true}, TopicName: "x", PacketID: 65535, Payload: []byte{}},
	}

	for _, tt := range tests {
		parsed, err := ParsePublishPacket(read(t, NewPublishPacket(&tt)))
		require.NoError(t, err)
		assert.Equal(t, tt.PacketFlag, parsed.PacketFlag)
		assert.Equal(t, tt.TopicName, parsed.TopicName)
		assert.Equal(t, tt.PacketID, parsed.PacketID)
		assert.Equal(t, string(tt.Payload), string(parsed.Payload))
	}
}

func TestPublishPacketErrors(t *testing.T) {
	_, err := ParsePublishPacket(read(t, mqtt.Encode(mqtt.PUBLISH, 0x06, []byte{0x00, 0x01, 'a'})))
	assert.ErrorIs(t, err, mqtt.ErrMalformedPacket, "QoS 3")

	_, err = ParsePublishPacket(read(t, mqtt.Encode(mqtt.PUBLISH, 0x08, []byte{0x00, 0x01, 'a'})))
	assert.ErrorIs(t, err, mqtt.ErrMalformedPacket, "dup with QoS 0")

	_, err = ParsePublishPacket(read(t, mqtt.Encode(mqtt.PUBLISH, 0x02, []byte{0x00, 0x01, 'a', 0x00, 0x00})))
	assert.ErrorIs(t, err, mqtt.ErrMalformedPacket, "packet id 0")

	_, err = ParsePublishPacket(read(t, mqtt.Encode(mqtt.PUBLISH, 0x00, []byte{0x00, 0x09, 'a'})))
	assert.ErrorIs(t, err, mqtt.ErrMalformedPacket, "topic longer than body")
}

func TestAckPackets(t *testing.T) {
	assert.Equal(t, []byte{0x40, 0x02, 0x00, 0x05}, NewAckPacket(mqtt.PUBACK, 5))
	assert.Equal(t, []byte{0x62, 0x02, 0x01, 0x00}, NewAckPacket(mqtt.PUBREL, 256))
	assert.Equal(t, []byte{0xB0, 0x02, 0x00, 0x09}, NewUnSubAckPacket(9))

	for _, packetType := range []mqtt.PacketType{mqtt.PUBACK, mqtt.PUBREC, mqtt.PUBREL, mqtt.PUBCOMP} {
		id, err := ParseAckPacket(read(t, NewAckPacket(packetType, 42)))
		require.NoError(t, err)
		assert.Equal(t, uint16(42), id)
	}

	_, err := ParseAckPacket(read(t, mqtt.Encode(mqtt.PUBACK, 0, []byte{0x00})))
	assert.ErrorIs(t, err, mqtt.ErrMalformedPacket)
}

func TestSubscribePacket(t *testing.T) {
	raw := NewSubscribePacket(&SubscribePacketPayloads{
		PacketID: 10,
		Subscriptions: []TopicRequest{
			{Filter: "home/+", QoS: 1},
			{Filter: "sensors/#", QoS: 2},
			{Filter: "bad", QoS: 3},
		},
	})

	parsed, err := ParseSubscribePacket(read(t, raw))
	require.NoError(t, err)
	assert.Equal(t, uint16(10), parsed.PacketID)
	assert.Equal(t, []TopicRequest{{"home/+", 1}, {"sensors/#", 2}, {"bad", 3}}, parsed.Subscriptions)

	_, err = ParseSubscribePacket(read(t, mqtt.Encode(mqtt.SUBSCRIBE, 0x02, []byte{0x00, 0x01})))
	assert.ErrorIs(t, err, mqtt.ErrMalformedPacket, "empty subscription list")

	_, err = ParseSubscribePacket(read(t, mqtt.Encode(mqtt.SUBSCRIBE, 0x02, []byte{0x00, 0x01, 0x00, 0x01, 'a', 0x40})))
	assert.ErrorIs(t, err, mqtt.ErrMalformedPacket, "reserved QoS bits")

	assert.Equal(t, []byte{0x90, 0x04, 0x00, 0x0A, 0x01, 0x80}, NewSubAckPacket(10, []SubscribeState{SuccessQos1, Failure}))
}

func TestUnsubscribePacket(t *testing.T) {
	raw := NewUnSubscribePacket(&UnSubscribePacketPayloads{PacketID: 3, Filters: []string{"a/b", "c/#"}})
	parsed, err := ParseUnSubscribePacket(read(t, raw))
	require.NoError(t, err)
	assert.Equal(t, uint16(3), parsed.PacketID)
	assert.Equal(t, []string{"a/b", "c/#"}, parsed.Filters)

	_, err = ParseUnSubscribePacket(read(t, mqtt.Encode(mqtt.UNSUBSCRIBE, 0x02, []byte{0x00, 0x01})))
	assert.ErrorIs(t, err, mqtt.ErrMalformedPacket)
}

func TestEmptyPackets(t *testing.T) {
	assert.Equal(t, []byte{0xD0, 0x00}, NewPingRespPacket())
	assert.Equal(t, []byte{0xC0, 0x00}, NewPingReqPacket())
	assert.Equal(t, []byte{0xE0, 0x00}, NewDisconnectPacket())

	assert.NoError(t, CheckEmpty(read(t, NewDisconnectPacket())))
	assert.ErrorIs(t, CheckEmpty(read(t, mqtt.Encode(mqtt.DISCONNECT, 0, []byte{0x00}))), mqtt.ErrMalformedPacket)
}
