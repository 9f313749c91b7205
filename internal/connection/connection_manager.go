// Package connection 实现了MQTT服务器的连接管理功能
package connection

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/life-stream-dev/lifestream-broker/internal/logger"
)

// Connection 表示一个客户端连接
type Connection struct {
	Conn     net.Conn
	ConnID   string
	clientID string
	mu       sync.Mutex
	writeMu  sync.Mutex
}

func NewConnection(conn net.Conn) *Connection {
	return &Connection{Conn: conn, ConnID: conn.RemoteAddr().String()}
}

// SetClientID 在 CONNECT 完成后记录客户端标识
func (c *Connection) SetClientID(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientID = clientID
}

func (c *Connection) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// Close 关闭底层连接，忽略重复关闭产生的错误
func (c *Connection) Close() {
	if err := c.Conn.Close(); err != nil && !IsNetClosedError(err) {
		logger.WarnF("[%s] Error occured while closing connection, details: %v", c.ConnID, err)
	}
}

// ConnectionManager 连接管理器，按远端地址索引所有活跃连接
type ConnectionManager struct {
	mu          sync.Mutex
	connections map[string]*Connection
	closed      bool
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{connections: make(map[string]*Connection)}
}

// AddConnection 添加连接，管理器关闭后返回 false
func (cm *ConnectionManager) AddConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.closed {
		return false
	}
	cm.connections[conn.ConnID] = conn
	logger.DebugF("[%s] Connection registered, total %d", conn.ConnID, len(cm.connections))
	return true
}

// RemoveConnection 移除连接
func (cm *ConnectionManager) RemoveConnection(connID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, connID)
}

// GetConnection 获取连接
func (cm *ConnectionManager) GetConnection(connID string) (*Connection, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	conn, ok := cm.connections[connID]
	return conn, ok
}

func (cm *ConnectionManager) Len() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.connections)
}

// CloseAll 关闭所有连接并拒绝后续注册
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	cm.closed = true
	connections := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		connections = append(connections, conn)
	}
	cm.mu.Unlock()

	for _, conn := range connections {
		conn.Close()
	}
	logger.InfoF("Closed %d client connections", len(connections))
}

func IsNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func HandleReadError(connID string, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%s] Client close connection", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	case IsNetClosedError(err):
		logger.DebugF("[%s] Connection closed locally", connID)
	default:
		logger.ErrorF("[%s] Error occured while reading packet, details: %v", connID, err)
	}
}
