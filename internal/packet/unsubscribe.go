package packet

import (
	"fmt"

	"github.com/life-stream-dev/lifestream-broker/internal/mqtt"
)

type UnSubscribePacketPayloads struct {
	PacketID uint16
	Filters  []string
}

func NewUnSubscribePacket(p *UnSubscribePacketPayloads) []byte {
	body := mqtt.UInt16ToByte(p.PacketID)
	for _, filter := range p.Filters {
		body = appendField(body, []byte(filter))
	}
	return mqtt.Encode(mqtt.UNSUBSCRIBE, 0x02, body)
}

func NewUnSubAckPacket(packetID uint16) []byte {
	return NewAckPacket(mqtt.UNSUBACK, packetID)
}

func ParseUnSubscribePacket(packet *mqtt.Packet) (*UnSubscribePacketPayloads, error) {
	result := &UnSubscribePacketPayloads{}

	var err error
	if result.PacketID, err = readPacketUint16(packet.Payload); err != nil {
		return nil, fmt.Errorf("error occured when reading packet ID: %w", err)
	}

	for packet.Payload.CheckRemainingLength() {
		topicFilter, err := readPacketPayload(packet.Payload)
		if err != nil {
			return nil, fmt.Errorf("error occured when reading topic filter: %w", err)
		}
		result.Filters = append(result.Filters, string(topicFilter.Payload))
	}

	if len(result.Filters) == 0 {
		return nil, fmt.Errorf("%w: UNSUBSCRIBE carries no topic filter", mqtt.ErrMalformedPacket)
	}
	return result, nil
}
