package connection

import (
	"time"

	"github.com/life-stream-dev/lifestream-broker/internal/logger"
)

// DefaultWriteTimeout 限制单次写入的阻塞时间
const DefaultWriteTimeout = 10 * time.Second

// Send 发送数据到客户端。读循环和写协程共用连接，写入互斥
func (c *Connection) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.Conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	total := 0
	for total < len(data) {
		n, err := c.Conn.Write(data[total:])
		if err != nil {
			logger.ErrorF("[%s] Fail to send data, details: %v", c.ConnID, err)
			return err
		}
		total += n
	}
	logger.DebugF("[%s] Send %d bytes to client", c.ConnID, total)
	return nil
}
