// Package server 实现 TCP 传输层，把 MQTT 报文转换为对 broker 的调用
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/life-stream-dev/lifestream-broker/internal/broker"
	"github.com/life-stream-dev/lifestream-broker/internal/connection"
	"github.com/life-stream-dev/lifestream-broker/internal/logger"
	"github.com/life-stream-dev/lifestream-broker/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultConnectTimeout = time.Minute
	DefaultMaxPacketSize  = 1 << 20
)

type Options struct {
	Address        string
	OutboxSize     int
	KeepAliveGrace float64
	PublishRate    float64 // 每秒允许的 PUBLISH 数，0 表示不限制
	PublishBurst   int
	MaxConnections int // 0 表示不限制
	ConnectTimeout time.Duration
	MaxPacketSize  int
	Metrics        *metrics.Metrics
}

type Server struct {
	broker  *broker.Broker
	opts    Options
	manager *connection.ConnectionManager
	sem     chan struct{}
	wg      sync.WaitGroup
}

func New(b *broker.Broker, opts Options) *Server {
	if opts.KeepAliveGrace < 1 {
		opts.KeepAliveGrace = broker.DefaultKeepAliveGrace
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.MaxPacketSize <= 0 {
		opts.MaxPacketSize = DefaultMaxPacketSize
	}
	s := &Server{
		broker:  b,
		opts:    opts,
		manager: connection.NewConnectionManager(),
	}
	if opts.MaxConnections > 0 {
		s.sem = make(chan struct{}, opts.MaxConnections)
	}
	return s
}

// ListenAndServe 监听 opts.Address 直到 ctx 被取消
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在 ln 上接受连接直到 ctx 被取消，返回前关闭所有客户端连接并等待处理协程退出
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger.InfoF("MQTT Server Listen On %s", ln.Addr().String())

	go func() {
		<-ctx.Done()
		if err := ln.Close(); err != nil && !connection.IsNetClosedError(err) {
			logger.ErrorF("Server close error: %v", err)
		}
	}()

	defer func() {
		s.manager.CloseAll()
		s.wg.Wait()
		logger.Info("MQTT Server stopped")
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.ErrorF("Accept connection error: %v", err)
			continue
		}

		logger.DebugF("Accepted new connection from %s", conn.RemoteAddr().String())

		if !s.acquire() {
			logger.WarnF("[%s] Connection limit %d reached, rejecting", conn.RemoteAddr(), s.opts.MaxConnections)
			_ = conn.Close()
			continue
		}

		c := connection.NewConnection(conn)
		if !s.manager.AddConnection(c) {
			s.release()
			c.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			defer s.manager.RemoveConnection(c.ConnID)
			s.newHandler(ctx, c).handleConnection()
		}()
	}
}

func (s *Server) acquire() bool {
	if s.sem == nil {
		return true
	}
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	if s.sem != nil {
		<-s.sem
	}
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.opts.PublishRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(s.opts.PublishRate), s.opts.PublishBurst)
}

func (s *Server) Connections() int {
	return s.manager.Len()
}
