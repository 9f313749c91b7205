package packet

import (
	"fmt"

	"github.com/life-stream-dev/lifestream-broker/internal/mqtt"
)

func NewDisconnectPacket() []byte {
	return mqtt.Encode(mqtt.DISCONNECT, 0, nil)
}

// CheckEmpty 校验 PINGREQ 与 DISCONNECT 这类没有剩余部分的报文
func CheckEmpty(packet *mqtt.Packet) error {
	if packet.Header.RemainingLength != 0 {
		return fmt.Errorf("%w: %s must not carry a body", mqtt.ErrMalformedPacket, packet.Header.Type)
	}
	return nil
}
