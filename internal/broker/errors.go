package broker

import "errors"

var (
	ErrUnknownClient   = errors.New("unknown client")
	ErrInvalidClientID = errors.New("invalid client id")
	ErrInvalidQoS      = errors.New("invalid QoS level")
	ErrInvalidSink     = errors.New("connect requires a sink")
	ErrNotAuthorized   = errors.New("not authorized")
	ErrOutboxFull      = errors.New("outbox full")
	ErrOutboxClosed    = errors.New("outbox closed")
)
