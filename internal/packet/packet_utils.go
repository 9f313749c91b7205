// Package packet 负责各类控制报文的解析与构造
package packet

import (
	"fmt"

	"github.com/life-stream-dev/lifestream-broker/internal/mqtt"
)

type FieldPayload struct {
	PayloadLength int
	Payload       []byte
}

func readPacketByte(payload *mqtt.Payload) (byte, error) {
	startByte := payload.CurrentPtr
	if startByte >= payload.ContextLen {
		return 0, fmt.Errorf("%w: invalid packet context length", mqtt.ErrMalformedPacket)
	}
	payload.CurrentPtr++
	return payload.Context[startByte], nil
}

// readPacketBytes 读取 length 个字节，length 为 0 时返回空切片
func readPacketBytes(payload *mqtt.Payload, length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: invalid reading length %d", mqtt.ErrMalformedPacket, length)
	}
	end := payload.CurrentPtr + length
	if end > payload.ContextLen {
		return nil, fmt.Errorf("%w: invalid packet context length", mqtt.ErrMalformedPacket)
	}
	data := payload.Context[payload.CurrentPtr:end]
	payload.CurrentPtr = end
	return data, nil
}

func readPacketUint16(payload *mqtt.Payload) (uint16, error) {
	data, err := readPacketBytes(payload, 2)
	if err != nil {
		return 0, err
	}
	return mqtt.ByteToUInt16(data), nil
}

func readPacketPayload(payload *mqtt.Payload) (FieldPayload, error) {
	length, err := readPacketUint16(payload)
	if err != nil {
		return FieldPayload{}, fmt.Errorf("%w: insufficient bytes for length", mqtt.ErrMalformedPacket)
	}
	data, err := readPacketBytes(payload, int(length))
	if err != nil {
		return FieldPayload{}, fmt.Errorf("%w: payload length %d exceeds buffer (len=%d)", mqtt.ErrMalformedPacket, length, payload.ContextLen)
	}
	return FieldPayload{PayloadLength: int(length), Payload: data}, nil
}

func appendField(buf []byte, field []byte) []byte {
	buf = append(buf, mqtt.UInt16ToByte(uint16(len(field)))...)
	return append(buf, field...)
}
