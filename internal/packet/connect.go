package packet

// 控制包类型 CONNECT 相关函数

import (
	"fmt"

	"github.com/life-stream-dev/lifestream-broker/internal/mqtt"
)

const (
	ProtocolName    = "MQTT"
	ProtocolVersion = 0x04
)

type ConnectRespType byte

const (
	Accepted ConnectRespType = iota
	UnacceptableProtocol
	IdentifierRejected
	ServerUnavailable
	AuthenticationFailed
	NotAuthorized
)

// ConnectPacketFlag CONNECT控制包连接标志位
type ConnectPacketFlag struct {
	UsernameFlag    bool
	PasswordFlag    bool
	WillRetain      bool
	WillQoS         byte
	WillMessageFlag bool
	CleanSession    bool
}

type ConnectPacketPayloads struct {
	ConnectFlag        ConnectPacketFlag
	ClientIdentifier   FieldPayload
	UsernamePayload    FieldPayload
	PasswordPayload    FieldPayload
	WillMessageTopic   FieldPayload
	WillMessageContent FieldPayload
	KeepAlive          uint16
}

func (c *ConnectPacketPayloads) ClientID() string {
	return string(c.ClientIdentifier.Payload)
}

func NewConnectAckPacket(sessionPresent bool, returnCode ConnectRespType) []byte {
	var flags byte
	if sessionPresent && returnCode == Accepted {
		flags = 0x01
	}
	return mqtt.Encode(mqtt.CONNACK, 0, []byte{flags, byte(returnCode)})
}

// ParseConnectPacket 解析 CONNECT 控制包的可变头和负载。
// 需要回复拒绝原因时同时返回对应的 CONNACK
func ParseConnectPacket(packet *mqtt.Packet) (*ConnectPacketPayloads, []byte, error) {
	payload := packet.Payload
	result := &ConnectPacketPayloads{}

	protocolString, err := readPacketPayload(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to check protocol string: %w", err)
	}
	if string(protocolString.Payload) != ProtocolName {
		return nil, nil, fmt.Errorf("%w: incorrect protocol string %q", mqtt.ErrMalformedPacket, protocolString.Payload)
	}

	// 协议版本
	protocolVersion, err := readPacketByte(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to read protocol version: %w", err)
	}
	if protocolVersion != ProtocolVersion {
		return nil, NewConnectAckPacket(false, UnacceptableProtocol), fmt.Errorf("protocol version %d does not match", protocolVersion)
	}

	// 连接标志位
	connectFlag, err := readPacketByte(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to read connect flag: %w", err)
	}
	if connectFlag&0x01 != 0 {
		return nil, nil, fmt.Errorf("%w: reserved connect flag is set", mqtt.ErrMalformedPacket)
	}

	// 解析标志位
	result.ConnectFlag = ConnectPacketFlag{
		UsernameFlag:    connectFlag&0x80 != 0,
		PasswordFlag:    connectFlag&0x40 != 0,
		WillRetain:      connectFlag&0x20 != 0,
		WillQoS:         (connectFlag & 0x18) >> 3, // 0x18 = 00011000
		WillMessageFlag: connectFlag&0x04 != 0,
		CleanSession:    connectFlag&0x02 != 0,
	}
	flag := result.ConnectFlag

	if !flag.WillMessageFlag && (flag.WillRetain || flag.WillQoS != 0) {
		return nil, nil, fmt.Errorf("%w: will retain and will QoS require the will flag", mqtt.ErrMalformedPacket)
	}
	if flag.WillQoS > 2 {
		return nil, nil, fmt.Errorf("%w: will QoS must not be 3", mqtt.ErrMalformedPacket)
	}
	if flag.PasswordFlag && !flag.UsernameFlag {
		return nil, nil, fmt.Errorf("%w: password flag requires username flag", mqtt.ErrMalformedPacket)
	}

	// Keep Alive Time
	result.KeepAlive, err = readPacketUint16(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to read keep alive time: %w", err)
	}

	// Client ID
	result.ClientIdentifier, err = readPacketPayload(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("client ID: %w", err)
	}
	if result.ClientIdentifier.PayloadLength == 0 && !flag.CleanSession {
		return nil, NewConnectAckPacket(false, IdentifierRejected), fmt.Errorf("empty client ID requires clean session")
	}

	// Will Message
	if flag.WillMessageFlag {
		if result.WillMessageTopic, err = readPacketPayload(payload); err != nil {
			return nil, nil, fmt.Errorf("will topic: %w", err)
		}
		if result.WillMessageContent, err = readPacketPayload(payload); err != nil {
			return nil, nil, fmt.Errorf("will content: %w", err)
		}
	}

	// Username
	if flag.UsernameFlag {
		if result.UsernamePayload, err = readPacketPayload(payload); err != nil {
			return nil, nil, fmt.Errorf("username: %w", err)
		}
	}

	// Password
	if flag.PasswordFlag {
		if result.PasswordPayload, err = readPacketPayload(payload); err != nil {
			return nil, nil, fmt.Errorf("password: %w", err)
		}
	}

	return result, nil, nil
}

// NewConnectPacket 构造 CONNECT 报文，客户端与测试使用
func NewConnectPacket(c *ConnectPacketPayloads) []byte {
	var connectFlag byte
	if c.ConnectFlag.UsernameFlag {
		connectFlag |= 0x80
	}
	if c.ConnectFlag.PasswordFlag {
		connectFlag |= 0x40
	}
	if c.ConnectFlag.WillRetain {
		connectFlag |= 0x20
	}
	connectFlag |= (c.ConnectFlag.WillQoS & 0x03) << 3
	if c.ConnectFlag.WillMessageFlag {
		connectFlag |= 0x04
	}
	if c.ConnectFlag.CleanSession {
		connectFlag |= 0x02
	}

	body := appendField(nil, []byte(ProtocolName))
	body = append(body, ProtocolVersion, connectFlag)
	body = append(body, mqtt.UInt16ToByte(c.KeepAlive)...)
	body = appendField(body, c.ClientIdentifier.Payload)
	if c.ConnectFlag.WillMessageFlag {
		body = appendField(body, c.WillMessageTopic.Payload)
		body = appendField(body, c.WillMessageContent.Payload)
	}
	if c.ConnectFlag.UsernameFlag {
		body = appendField(body, c.UsernamePayload.Payload)
	}
	if c.ConnectFlag.PasswordFlag {
		body = appendField(body, c.PasswordPayload.Payload)
	}
	return mqtt.Encode(mqtt.CONNECT, 0, body)
}
