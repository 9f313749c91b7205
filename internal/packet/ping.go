package packet

import "github.com/life-stream-dev/lifestream-broker/internal/mqtt"

func NewPingReqPacket() []byte {
	return mqtt.Encode(mqtt.PINGREQ, 0, nil)
}

func NewPingRespPacket() []byte {
	return mqtt.Encode(mqtt.PINGRESP, 0, nil)
}
