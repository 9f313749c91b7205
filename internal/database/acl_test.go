package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/life-stream-dev/lifestream-broker/internal/broker"
	"github.com/stretchr/testify/assert"
)

type fakeRules struct {
	rules []Rule
	err   error
	calls int
}

func (f *fakeRules) Rules(_ context.Context, clientID string) ([]Rule, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var result []Rule
	for _, rule := range f.rules {
		if rule.ClientID == clientID || rule.ClientID == AnyClient {
			result = append(result, rule)
		}
	}
	return result, nil
}

func TestACLDecisions(t *testing.T) {
	source := &fakeRules{rules: []Rule{
		{ClientID: AnyClient, Action: "subscribe", Filter: "public/#", Allow: true},
		{ClientID: AnyClient, Action: "publish", Filter: "secret/#", Allow: false},
		{ClientID: "admin", Action: "publish", Filter: "secret/#", Allow: true},
		{ClientID: "sensor", Action: "publish", Filter: "sensors/+/temp", Allow: true},
		{ClientID: "sensor", Action: "publish", Filter: "sensors/+/temp", Allow: false},
		{ClientID: "reader", Action: "subscribe", Filter: "sensors/+", Allow: true},
		{ClientID: "auditor", Action: "subscribe", Filter: "sensors/#", Allow: true},
		{ClientID: "auditor", Action: "subscribe", Filter: "sensors/secret", Allow: false},
	}}
	acl := NewACL(source, 16, time.Minute, false)
	ctx := context.Background()

	tests := []struct {
		name     string
		clientID string
		action   broker.Action
		topic    string
		expected bool
	}{
		{"wildcard allow", "guest", broker.ActionSubscribe, "public/news", true},
		{"filter covered by rule", "guest", broker.ActionSubscribe, "public/+", true},
		{"wildcard deny", "guest", broker.ActionPublish, "secret/x", false},
		{"client rule overrides wildcard", "admin", broker.ActionPublish, "secret/x", true},
		{"deny wins within client", "sensor", broker.ActionPublish, "sensors/a/temp", false},
		{"action mismatch falls back to default", "guest", broker.ActionPublish, "public/news", false},
		{"no rule uses default", "guest", broker.ActionSubscribe, "other", false},
		{"single level rule grants level", "reader", broker.ActionSubscribe, "sensors/a", true},
		{"single level rule grants single level filter", "reader", broker.ActionSubscribe, "sensors/+", true},
		{"single level rule does not grant multi level filter", "reader", broker.ActionSubscribe, "sensors/#", false},
		{"single level rule does not grant deeper topic", "reader", broker.ActionSubscribe, "sensors/a/b", false},
		{"deny overlapping requested filter", "auditor", broker.ActionSubscribe, "sensors/+", false},
		{"deny disjoint from requested filter", "auditor", broker.ActionSubscribe, "sensors/public/+", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, acl.Authorize(ctx, tt.clientID, tt.action, tt.topic))
		})
	}
}

func TestACLDefaultAllow(t *testing.T) {
	acl := NewACL(&fakeRules{}, 16, time.Minute, true)
	assert.True(t, acl.Authorize(context.Background(), "c1", broker.ActionPublish, "a/b"))
}

func TestACLCache(t *testing.T) {
	source := &fakeRules{rules: []Rule{{ClientID: "c1", Action: "publish", Filter: "a/#", Allow: true}}}
	acl := NewACL(source, 16, time.Minute, false)
	ctx := context.Background()

	assert.True(t, acl.Authorize(ctx, "c1", broker.ActionPublish, "a/b"))
	assert.True(t, acl.Authorize(ctx, "c1", broker.ActionPublish, "a/b"))
	assert.Equal(t, 1, source.calls)

	source.rules = nil
	acl.Invalidate()
	assert.False(t, acl.Authorize(ctx, "c1", broker.ActionPublish, "a/b"))
	assert.Equal(t, 2, source.calls)
}

func TestACLLookupFailureDenies(t *testing.T) {
	source := &fakeRules{err: errors.New("connection refused")}
	acl := NewACL(source, 16, time.Minute, true)
	ctx := context.Background()

	assert.False(t, acl.Authorize(ctx, "c1", broker.ActionPublish, "a/b"))
	assert.False(t, acl.Authorize(ctx, "c1", broker.ActionPublish, "a/b"))
	assert.Equal(t, 2, source.calls, "failures are not cached")
}

func TestACLWithBroker(t *testing.T) {
	source := &fakeRules{rules: []Rule{{ClientID: AnyClient, Action: "subscribe", Filter: "$SYS/#", Allow: false}}}
	b := broker.New(broker.WithAuthorizer(NewACL(source, 16, time.Minute, true)))
	_, err := b.Connect(broker.ConnectRequest{ClientID: "c1", Clean: true, Sink: broker.NewOutbox(4)})
	assert.NoError(t, err)

	_, err = b.Subscribe(context.Background(), "c1", "$SYS/stats", 0)
	assert.ErrorIs(t, err, broker.ErrNotAuthorized)
	_, err = b.Subscribe(context.Background(), "c1", "home/#", 0)
	assert.NoError(t, err)
}
