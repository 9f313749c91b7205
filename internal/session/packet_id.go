package session

import (
	"errors"
	"sync"
)

var ErrNoPacketID = errors.New("no packet identifier available")

// PacketIDs allocates 16-bit packet identifiers for outbound QoS>0 messages.
// Identifier 0 is never issued.
type PacketIDs struct {
	mu        sync.Mutex
	currentID uint16
	released  map[uint16]struct{}
	inUse     map[uint16]struct{}
}

func NewPacketIDs() *PacketIDs {
	return &PacketIDs{
		currentID: 1, // 起始值为1
		released:  make(map[uint16]struct{}),
		inUse:     make(map[uint16]struct{}),
	}
}

// Next 获取下一个可用ID
func (m *PacketIDs) Next() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 优先使用已释放的ID
	for id := range m.released {
		delete(m.released, id)
		m.inUse[id] = struct{}{}
		return id, nil
	}

	if len(m.inUse) >= 65535 {
		return 0, ErrNoPacketID
	}

	// 分配新ID，跳过仍在使用中的ID
	for {
		id := m.currentID
		m.currentID++
		if m.currentID == 0 { // 溢出处理
			m.currentID = 1
		}
		if _, busy := m.inUse[id]; !busy {
			m.inUse[id] = struct{}{}
			return id, nil
		}
	}
}

// Release 释放ID（收到确认后调用）
func (m *PacketIDs) Release(id uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inUse[id]; !ok {
		return
	}
	delete(m.inUse, id)
	m.released[id] = struct{}{}
}

func (m *PacketIDs) InUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inUse)
}
