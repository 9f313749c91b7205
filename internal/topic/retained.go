package topic

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const DefaultRetainedCapacity = 10000

// Message is a published application message.
type Message struct {
	Topic     string
	Payload   []byte
	QoS       byte
	Retain    bool
	Timestamp time.Time
}

// RetainedStore keeps the last retained message of every topic. When full, the
// topic written least recently is evicted.
type RetainedStore struct {
	messages *simplelru.LRU[string, Message]
}

func NewRetainedStore(capacity int) *RetainedStore {
	if capacity <= 0 {
		capacity = DefaultRetainedCapacity
	}
	// 容量为正数时 NewLRU 不会返回错误
	lru, _ := simplelru.NewLRU[string, Message](capacity, nil)
	return &RetainedStore{messages: lru}
}

// Set stores msg under its topic, or deletes the entry when the payload is empty.
// It reports whether another topic was evicted to make room.
func (s *RetainedStore) Set(msg Message) (evicted bool) {
	if len(msg.Payload) == 0 {
		s.messages.Remove(msg.Topic)
		return false
	}
	return s.messages.Add(msg.Topic, msg)
}

func (s *RetainedStore) Get(topic string) (Message, bool) {
	return s.messages.Peek(topic)
}

// Matching returns the retained messages whose topic matches filter, oldest
// write first.
func (s *RetainedStore) Matching(filter string) []Message {
	var result []Message
	for _, topic := range s.messages.Keys() {
		if !Match(filter, topic) {
			continue
		}
		if msg, ok := s.messages.Peek(topic); ok {
			result = append(result, msg)
		}
	}
	return result
}

func (s *RetainedStore) Len() int {
	return s.messages.Len()
}
