package broker

import "context"

// Action is the operation an Authorizer is asked about.
type Action byte

const (
	ActionPublish Action = iota + 1
	ActionSubscribe
)

func (a Action) String() string {
	switch a {
	case ActionPublish:
		return "publish"
	case ActionSubscribe:
		return "subscribe"
	default:
		return "unknown"
	}
}

// Authorizer is the allow/deny call-out consulted before publish and
// subscribe. It runs outside the broker lock and may perform I/O.
type Authorizer interface {
	Authorize(ctx context.Context, clientID string, action Action, topic string) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, clientID string, action Action, topic string) bool

func (f AuthorizerFunc) Authorize(ctx context.Context, clientID string, action Action, topic string) bool {
	return f(ctx, clientID, action, topic)
}

type allowAll struct{}

func (allowAll) Authorize(context.Context, string, Action, string) bool { return true }
