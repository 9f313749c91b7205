package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/life-stream-dev/lifestream-broker/internal/broker"
	"github.com/life-stream-dev/lifestream-broker/internal/connection"
	"github.com/life-stream-dev/lifestream-broker/internal/logger"
	"github.com/life-stream-dev/lifestream-broker/internal/metrics"
	"github.com/life-stream-dev/lifestream-broker/internal/mqtt"
	pa "github.com/life-stream-dev/lifestream-broker/internal/packet"
	"github.com/life-stream-dev/lifestream-broker/internal/session"
	"github.com/life-stream-dev/lifestream-broker/internal/topic"
	"golang.org/x/time/rate"
)

var errProtocolViolation = errors.New("protocol violation")

type ConnectionHandler struct {
	ctx      context.Context
	server   *Server
	conn     *connection.Connection
	connId   string
	clientID string

	keepAlive time.Duration
	outbox    *broker.Outbox
	inflight  *session.Inflight
	limiter   *rate.Limiter
	// 已收到 PUBLISH(QoS 2) 但尚未收到 PUBREL 的报文标识符
	awaitingRelease map[uint16]struct{}
	graceful        bool
	writerDone      chan struct{}
}

func (s *Server) newHandler(ctx context.Context, c *connection.Connection) *ConnectionHandler {
	return &ConnectionHandler{
		ctx:             ctx,
		server:          s,
		conn:            c,
		connId:          c.ConnID,
		inflight:        session.NewInflight(session.NewPacketIDs()),
		limiter:         s.newLimiter(),
		awaitingRelease: make(map[uint16]struct{}),
	}
}

func (c *ConnectionHandler) handleConnection() {
	defer func() {
		logger.DebugF("[%s] Connection closed", c.connId)
		c.conn.Close()
	}()

	if err := c.handleFirstPacket(); err != nil {
		logger.WarnF("[%s] Connection refused, details: %v", c.connId, err)
		return
	}

	c.writerDone = make(chan struct{})
	go c.writeLoop()

	c.handlePacket()

	c.server.broker.DisconnectSink(c.clientID, c.outbox, c.graceful)
	// 会话已切换或已断开时 outbox 已被关闭，这里确保写协程退出
	c.outbox.Close()
	c.conn.Close()
	<-c.writerDone
	if n := c.inflight.Reset(); n > 0 {
		logger.DebugF("[%s] Dropped %d unacknowledged messages", c.clientID, n)
	}
}

func (c *ConnectionHandler) handleFirstPacket() error {
	_ = c.conn.Conn.SetReadDeadline(time.Now().Add(c.server.opts.ConnectTimeout))
	packet, err := mqtt.ReadPacket(c.conn.Conn, c.server.opts.MaxPacketSize)
	if err != nil {
		return fmt.Errorf("fail to read first packet: %w", err)
	}

	if packet.Header.Type != mqtt.CONNECT {
		return fmt.Errorf("%w: expected %s packet, but got %s packet", errProtocolViolation, mqtt.CONNECT, packet.Header.Type)
	}

	clientInfo, resp, err := pa.ParseConnectPacket(packet)
	if err != nil {
		if resp != nil {
			_ = c.conn.Send(resp)
		}
		return fmt.Errorf("fail to parse CONNECT packet: %w", err)
	}

	var will *topic.Message
	if clientInfo.ConnectFlag.WillMessageFlag {
		will = &topic.Message{
			Topic:   string(clientInfo.WillMessageTopic.Payload),
			Payload: clientInfo.WillMessageContent.Payload,
			QoS:     clientInfo.ConnectFlag.WillQoS,
			Retain:  clientInfo.ConnectFlag.WillRetain,
		}
	}

	c.outbox = broker.NewOutbox(c.server.opts.OutboxSize)
	info, err := c.server.broker.Connect(broker.ConnectRequest{
		ClientID:  clientInfo.ClientID(),
		Clean:     clientInfo.ConnectFlag.CleanSession,
		KeepAlive: clientInfo.KeepAlive,
		Will:      will,
		Sink:      c.outbox,
	})
	if err != nil {
		if errors.Is(err, broker.ErrInvalidClientID) {
			_ = c.conn.Send(pa.NewConnectAckPacket(false, pa.IdentifierRejected))
		}
		return err
	}

	c.clientID = info.ClientID
	c.conn.SetClientID(info.ClientID)
	c.connId = fmt.Sprintf("%s|%s", c.conn.ConnID, info.ClientID)

	// 积压消息已进入 outbox，写协程启动前先发送 CONNACK
	if err := c.conn.Send(pa.NewConnectAckPacket(info.SessionPresent, pa.Accepted)); err != nil {
		c.server.broker.DisconnectSink(c.clientID, c.outbox, false)
		return err
	}

	c.keepAlive = time.Duration(float64(clientInfo.KeepAlive) * c.server.opts.KeepAliveGrace * float64(time.Second))
	if c.keepAlive == 0 {
		logger.WarnF("[%s] Keep alive set to 0, heartbeat disable", c.connId)
	}
	_ = c.conn.Conn.SetReadDeadline(time.Time{})
	return nil
}

func (c *ConnectionHandler) handlePacket() {
	for {
		if c.keepAlive != 0 {
			_ = c.conn.Conn.SetReadDeadline(time.Now().Add(c.keepAlive))
		}

		packet, err := mqtt.ReadPacket(c.conn.Conn, c.server.opts.MaxPacketSize)
		if err != nil {
			connection.HandleReadError(c.connId, err)
			return
		}

		logger.DebugF("[%s] Receive %s packet, length %d", c.connId, packet.Header.Type, packet.Header.RemainingLength)

		if err := c.dispatch(packet); err != nil {
			if !errors.Is(err, errDisconnect) {
				logger.ErrorF("[%s] Fail to handle %s packet, details: %v", c.connId, packet.Header.Type, err)
			}
			return
		}
	}
}

var errDisconnect = errors.New("client disconnect")

func (c *ConnectionHandler) dispatch(packet *mqtt.Packet) error {
	switch packet.Header.Type {
	case mqtt.CONNECT:
		return fmt.Errorf("%w: duplicate CONNECT packet", errProtocolViolation)
	case mqtt.PUBLISH:
		return c.handlePublish(packet)
	case mqtt.PUBREL:
		id, err := pa.ParseAckPacket(packet)
		if err != nil {
			return err
		}
		delete(c.awaitingRelease, id)
		return c.conn.Send(pa.NewAckPacket(mqtt.PUBCOMP, id))
	case mqtt.PUBACK:
		return c.handleAck(packet, c.inflight.Ack)
	case mqtt.PUBREC:
		return c.handleAck(packet, c.inflight.Receive)
	case mqtt.PUBCOMP:
		return c.handleAck(packet, c.inflight.Complete)
	case mqtt.SUBSCRIBE:
		return c.handleSubscribe(packet)
	case mqtt.UNSUBSCRIBE:
		return c.handleUnsubscribe(packet)
	case mqtt.PINGREQ:
		if err := pa.CheckEmpty(packet); err != nil {
			return err
		}
		if err := c.server.broker.Ping(c.clientID); err != nil {
			return err
		}
		return c.conn.Send(pa.NewPingRespPacket())
	case mqtt.DISCONNECT:
		if err := pa.CheckEmpty(packet); err != nil {
			return err
		}
		logger.InfoF("[%s] Client disconnect", c.connId)
		c.graceful = true
		return errDisconnect
	default:
		return fmt.Errorf("%w: %s packet is not accepted from clients", errProtocolViolation, packet.Header.Type)
	}
}

func (c *ConnectionHandler) handlePublish(packet *mqtt.Packet) error {
	p, err := pa.ParsePublishPacket(packet)
	if err != nil {
		return err
	}

	duplicate := false
	if p.PacketFlag.QoS == 2 {
		_, duplicate = c.awaitingRelease[p.PacketID]
	}

	if !duplicate {
		if err := c.route(p); err != nil {
			return err
		}
	}

	switch p.PacketFlag.QoS {
	case 1:
		return c.conn.Send(pa.NewAckPacket(mqtt.PUBACK, p.PacketID))
	case 2:
		c.awaitingRelease[p.PacketID] = struct{}{}
		return c.conn.Send(pa.NewAckPacket(mqtt.PUBREC, p.PacketID))
	}
	return nil
}

// route 把 PUBLISH 交给 broker。限流和鉴权拒绝只丢弃消息，不断开连接
func (c *ConnectionHandler) route(p *pa.PublishPacketPayloads) error {
	if !c.limiter.Allow() {
		c.server.opts.Metrics.Dropped(metrics.ReasonRateLimited)
		logger.WarnF("[%s] Publish rate exceeded, dropped message to %s", c.connId, p.TopicName)
		return nil
	}

	_, err := c.server.broker.PublishFrom(c.ctx, c.clientID, topic.Message{
		Topic:   p.TopicName,
		Payload: p.Payload,
		QoS:     p.PacketFlag.QoS,
		Retain:  p.PacketFlag.Retain,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, broker.ErrNotAuthorized):
		logger.WarnF("[%s] %v", c.connId, err)
		return nil
	default:
		return err
	}
}

func (c *ConnectionHandler) handleAck(packet *mqtt.Packet, step func(uint16) error) error {
	id, err := pa.ParseAckPacket(packet)
	if err != nil {
		return err
	}
	if err := step(id); err != nil {
		// 过期或重复的确认不影响连接
		logger.WarnF("[%s] Ignoring %s %d: %v", c.connId, packet.Header.Type, id, err)
		return nil
	}
	if packet.Header.Type != mqtt.PUBREC {
		return nil
	}
	if err := c.conn.Send(pa.NewAckPacket(mqtt.PUBREL, id)); err != nil {
		return err
	}
	return c.inflight.Release(id)
}

func (c *ConnectionHandler) handleSubscribe(packet *mqtt.Packet) error {
	p, err := pa.ParseSubscribePacket(packet)
	if err != nil {
		return err
	}

	states := make([]pa.SubscribeState, 0, len(p.Subscriptions))
	for _, sub := range p.Subscriptions {
		granted, err := c.server.broker.Subscribe(c.ctx, c.clientID, sub.Filter, sub.QoS)
		if err != nil {
			if errors.Is(err, broker.ErrUnknownClient) {
				return err
			}
			logger.WarnF("[%s] Subscribe to %s refused: %v", c.connId, sub.Filter, err)
			states = append(states, pa.Failure)
			continue
		}
		states = append(states, pa.SubscribeState(granted))
	}
	return c.conn.Send(pa.NewSubAckPacket(p.PacketID, states))
}

func (c *ConnectionHandler) handleUnsubscribe(packet *mqtt.Packet) error {
	p, err := pa.ParseUnSubscribePacket(packet)
	if err != nil {
		return err
	}
	for _, filter := range p.Filters {
		c.server.broker.Unsubscribe(c.clientID, filter)
	}
	return c.conn.Send(pa.NewUnSubAckPacket(p.PacketID))
}

// writeLoop 把 outbox 中的投递编码为 PUBLISH 写出，写失败视为异常断开
func (c *ConnectionHandler) writeLoop() {
	defer close(c.writerDone)

	for d := range c.outbox.C() {
		p := &pa.PublishPacketPayloads{
			PacketFlag: pa.PublishPacketFlag{QoS: d.QoS, Retain: d.Message.Retain},
			TopicName:  d.Message.Topic,
			Payload:    d.Message.Payload,
		}
		if d.QoS > 0 {
			id, err := c.inflight.Track(d)
			if err != nil {
				logger.WarnF("[%s] Dropping message to %s: %v", c.connId, d.Message.Topic, err)
				c.server.opts.Metrics.Dropped(metrics.ReasonDeliveryFailure)
				continue
			}
			p.PacketID = id
		}

		if err := c.conn.Send(pa.NewPublishPacket(p)); err != nil {
			c.server.broker.DisconnectSink(c.clientID, c.outbox, false)
			break
		}
	}
	// outbox 被关闭说明会话已被接管或断开，读循环随连接关闭退出
	c.conn.Close()
}
