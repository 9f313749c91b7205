package packet

import (
	"fmt"

	"github.com/life-stream-dev/lifestream-broker/internal/mqtt"
)

// NewAckPacket 构造只携带报文标识符的确认报文：PUBACK, PUBREC, PUBREL, PUBCOMP, UNSUBACK
func NewAckPacket(packetType mqtt.PacketType, packetID uint16) []byte {
	var flags byte
	if packetType == mqtt.PUBREL {
		flags = 0x02
	}
	return mqtt.Encode(packetType, flags, mqtt.UInt16ToByte(packetID))
}

// ParseAckPacket 读取确认报文中的报文标识符
func ParseAckPacket(packet *mqtt.Packet) (uint16, error) {
	if packet.Header.RemainingLength != 2 {
		return 0, fmt.Errorf("%w: %s remaining length must be 2, got %d",
			mqtt.ErrMalformedPacket, packet.Header.Type, packet.Header.RemainingLength)
	}
	return readPacketUint16(packet.Payload)
}
