package mqtt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxRemainingLength 是四字节剩余长度能表示的最大值
const MaxRemainingLength = 268435455

var (
	ErrMalformedPacket = errors.New("malformed packet")
	ErrPacketTooLarge  = errors.New("packet exceeds size limit")
)

func UInt16ToByte(number uint16) []byte {
	result := make([]byte, 2)
	binary.BigEndian.PutUint16(result, number)
	return result
}

func ByteToUInt16(bytes []byte) uint16 {
	switch len(bytes) {
	case 0:
		return 0
	case 1:
		return uint16(bytes[0])
	default:
		return binary.BigEndian.Uint16(bytes)
	}
}

func ReadByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadPacket 读取一个完整报文。maxSize 大于 0 时限制剩余长度
func ReadPacket(r io.Reader, maxSize int) (*Packet, error) {
	// 读取固定头
	typeAndFlags, err := ReadByte(r)
	if err != nil {
		return nil, err
	}

	// 解析剩余长度
	remaining, err := DecodeRemainingLength(r)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && remaining > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, remaining, maxSize)
	}

	header := &FixedHeader{
		Type:            PacketType(typeAndFlags >> 4),
		Flags:           typeAndFlags & 0x0F,
		RemainingLength: remaining,
	}
	if header.Type < CONNECT || header.Type > DISCONNECT {
		return nil, fmt.Errorf("%w: reserved packet type %d", ErrMalformedPacket, header.Type)
	}
	if !ValidateFlags(header.Type, header.Flags) {
		return nil, fmt.Errorf("%w: flags %d of %s packet is not valid", ErrMalformedPacket, header.Flags, header.Type)
	}

	// 读取可变头+有效载荷
	body := make([]byte, remaining)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return NewPacket(header, body), nil
}

func DecodeRemainingLength(r io.Reader) (int, error) {
	multiplier := 1
	value := 0
	for i := 0; i < 4; i++ { // 最多读取4字节
		encodedByte, err := ReadByte(r)
		if err != nil {
			return 0, err
		}
		value += int(encodedByte&127) * multiplier
		multiplier *= 128
		if (encodedByte & 128) == 0 {
			return value, nil
		}
	}
	return 0, fmt.Errorf("%w: the remaining length exceeds the 4 byte limit", ErrMalformedPacket)
}

func EncodeRemainingLength(x int) []byte {
	if x == 0 {
		return []byte{0}
	}
	var buf [4]byte
	i := 0
	for x > 0 && i < 4 {
		buf[i] = byte(x % 128)
		if x /= 128; x > 0 {
			buf[i] |= 128
		}
		i++
	}
	return buf[:i]
}

// Encode 拼接固定头部和剩余部分
func Encode(packetType PacketType, flags byte, body []byte) []byte {
	length := EncodeRemainingLength(len(body))
	packet := make([]byte, 0, 1+len(length)+len(body))
	packet = append(packet, byte(packetType)<<4|flags&0x0F)
	packet = append(packet, length...)
	return append(packet, body...)
}

func ValidateFlags(pt PacketType, flags byte) bool {
	allowed := allowedFlags[pt]
	// 检查标志位是否在允许范围内
	return (flags & ^allowed) == 0
}

func (p *Payload) CheckRemainingLength() bool {
	return p.CurrentPtr < p.ContextLen
}

func (p *Payload) Remaining() int {
	return p.ContextLen - p.CurrentPtr
}
