package packet

import (
	"fmt"

	"github.com/life-stream-dev/lifestream-broker/internal/mqtt"
)

type PublishPacketFlag struct {
	DupFlag bool
	QoS     byte
	Retain  bool
}

type PublishPacketPayloads struct {
	PacketFlag PublishPacketFlag
	TopicName  string
	PacketID   uint16
	Payload    []byte
}

func NewPublishPacket(p *PublishPacketPayloads) []byte {
	var flags byte
	if p.PacketFlag.DupFlag {
		flags |= 0x08
	}
	flags |= (p.PacketFlag.QoS & 0x03) << 1
	if p.PacketFlag.Retain {
		flags |= 0x01
	}

	body := make([]byte, 0, 4+len(p.TopicName)+len(p.Payload))
	body = appendField(body, []byte(p.TopicName))
	if p.PacketFlag.QoS > 0 {
		body = append(body, mqtt.UInt16ToByte(p.PacketID)...)
	}
	body = append(body, p.Payload...)
	return mqtt.Encode(mqtt.PUBLISH, flags, body)
}

func ParsePublishPacket(packet *mqtt.Packet) (*PublishPacketPayloads, error) {
	result := &PublishPacketPayloads{
		PacketFlag: PublishPacketFlag{
			DupFlag: packet.Header.Flags&0x08 != 0,
			QoS:     (packet.Header.Flags & 0x06) >> 1,
			Retain:  packet.Header.Flags&0x01 != 0,
		},
	}

	if result.PacketFlag.QoS == 0 && result.PacketFlag.DupFlag {
		return nil, fmt.Errorf("%w: when QoS level set to 0, dup flag must be set to 0 either", mqtt.ErrMalformedPacket)
	}
	if result.PacketFlag.QoS == 3 {
		return nil, fmt.Errorf("%w: the QoS level must not set to 3", mqtt.ErrMalformedPacket)
	}

	topicName, err := readPacketPayload(packet.Payload)
	if err != nil {
		return nil, fmt.Errorf("error occured when reading topic name: %w", err)
	}
	result.TopicName = string(topicName.Payload)

	if result.PacketFlag.QoS > 0 {
		if result.PacketID, err = readPacketUint16(packet.Payload); err != nil {
			return nil, fmt.Errorf("error occured when reading packet ID: %w", err)
		}
		if result.PacketID == 0 {
			return nil, fmt.Errorf("%w: packet ID must not be 0", mqtt.ErrMalformedPacket)
		}
	}

	result.Payload, err = readPacketBytes(packet.Payload, packet.Payload.Remaining())
	if err != nil {
		return nil, fmt.Errorf("error occured when reading payload: %w", err)
	}
	return result, nil
}
