package server

import "github.com/life-stream-dev/lifestream-broker/internal/topic"

func topicMessage(name, payload string, qos byte) topic.Message {
	return topic.Message{Topic: name, Payload: []byte(payload), QoS: qos}
}
