package packet

import (
	"fmt"

	"github.com/life-stream-dev/lifestream-broker/internal/mqtt"
)

type SubscribeState byte

const (
	SuccessQos0 SubscribeState = iota
	SuccessQos1
	SuccessQos2
	Failure SubscribeState = 0x80
)

type TopicRequest struct {
	Filter string
	QoS    byte
}

type SubscribePacketPayloads struct {
	PacketID      uint16
	Subscriptions []TopicRequest
}

func NewSubAckPacket(packetID uint16, states []SubscribeState) []byte {
	body := make([]byte, 0, 2+len(states))
	body = append(body, mqtt.UInt16ToByte(packetID)...)
	for _, state := range states {
		body = append(body, byte(state))
	}
	return mqtt.Encode(mqtt.SUBACK, 0, body)
}

func NewSubscribePacket(p *SubscribePacketPayloads) []byte {
	body := mqtt.UInt16ToByte(p.PacketID)
	for _, sub := range p.Subscriptions {
		body = appendField(body, []byte(sub.Filter))
		body = append(body, sub.QoS)
	}
	return mqtt.Encode(mqtt.SUBSCRIBE, 0x02, body)
}

// ParseSubscribePacket 解析订阅请求。QoS 非法的条目保留原值，由调用方回复 Failure
func ParseSubscribePacket(packet *mqtt.Packet) (*SubscribePacketPayloads, error) {
	result := &SubscribePacketPayloads{}

	var err error
	if result.PacketID, err = readPacketUint16(packet.Payload); err != nil {
		return nil, fmt.Errorf("error occured when reading packet ID: %w", err)
	}

	for packet.Payload.CheckRemainingLength() {
		topicFilter, err := readPacketPayload(packet.Payload)
		if err != nil {
			return nil, fmt.Errorf("error occured when reading topic filter: %w", err)
		}
		qos, err := readPacketByte(packet.Payload)
		if err != nil {
			return nil, fmt.Errorf("error occured when reading qos level: %w", err)
		}
		if qos&0xFC != 0 {
			return nil, fmt.Errorf("%w: reserved bits set in requested QoS", mqtt.ErrMalformedPacket)
		}
		result.Subscriptions = append(result.Subscriptions, TopicRequest{Filter: string(topicFilter.Payload), QoS: qos})
	}

	if len(result.Subscriptions) == 0 {
		return nil, fmt.Errorf("%w: SUBSCRIBE carries no topic filter", mqtt.ErrMalformedPacket)
	}
	return result, nil
}
