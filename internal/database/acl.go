package database

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/life-stream-dev/lifestream-broker/internal/broker"
	"github.com/life-stream-dev/lifestream-broker/internal/logger"
	"github.com/life-stream-dev/lifestream-broker/internal/topic"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AnyClient 作为 client_id 时规则对所有客户端生效
const AnyClient = "*"

// Rule 是 ACL 集合中的一条文档
type Rule struct {
	ClientID string `bson:"client_id"`
	Action   string `bson:"action"`
	Filter   string `bson:"filter"`
	Allow    bool   `bson:"allow"`
}

func (r Rule) covers(action broker.Action, name string) bool {
	if r.Action != action.String() {
		return false
	}
	if action != broker.ActionSubscribe {
		return topic.Match(r.Filter, name)
	}
	// 订阅时 name 本身是过滤器：允许规则须完整覆盖它，拒绝规则只要有交集即生效
	if r.Allow {
		return topic.Covers(r.Filter, name)
	}
	return topic.Overlaps(r.Filter, name)
}

// RuleSource 返回对 clientID 生效的所有规则，包括 AnyClient 规则
type RuleSource interface {
	Rules(ctx context.Context, clientID string) ([]Rule, error)
}

type mongoRules struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewMongoRules(collection *mongo.Collection, timeout time.Duration) RuleSource {
	return &mongoRules{collection: collection, timeout: timeout}
}

func (m *mongoRules) Rules(ctx context.Context, clientID string) ([]Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	startTime := time.Now()
	cursor, err := m.collection.Find(ctx, bson.M{"client_id": bson.M{"$in": []string{clientID, AnyClient}}})
	if err != nil {
		return nil, fmt.Errorf("database operation failed: %w", err)
	}
	var rules []Rule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("decode acl rules: %w", err)
	}
	logger.DebugF("[%s] ACL query returned %d rules, cost: %v", clientID, len(rules), time.Since(startTime))
	return rules, nil
}

type aclKey struct {
	clientID string
	action   broker.Action
	topic    string
}

// ACL 实现 broker.Authorizer。规则按客户端自身规则优先于 AnyClient 规则，
// 同一层级内拒绝优先于允许，都不匹配时使用 defaultAllow。
// 结果按 (客户端, 动作, 主题) 缓存 ttl 时长
type ACL struct {
	source       RuleSource
	cache        *expirable.LRU[aclKey, bool]
	defaultAllow bool
}

func NewACL(source RuleSource, cacheSize int, ttl time.Duration, defaultAllow bool) *ACL {
	return &ACL{
		source:       source,
		cache:        expirable.NewLRU[aclKey, bool](cacheSize, nil, ttl),
		defaultAllow: defaultAllow,
	}
}

func (a *ACL) Authorize(ctx context.Context, clientID string, action broker.Action, name string) bool {
	key := aclKey{clientID: clientID, action: action, topic: name}
	if allowed, ok := a.cache.Get(key); ok {
		return allowed
	}

	rules, err := a.source.Rules(ctx, clientID)
	if err != nil {
		// 查询失败时拒绝且不缓存
		logger.ErrorF("[%s] ACL lookup failed, denying %s %s, details: %v", clientID, action, name, err)
		return false
	}

	allowed := a.decide(rules, clientID, action, name)
	a.cache.Add(key, allowed)
	if !allowed {
		logger.InfoF("[%s] ACL denied %s %s", clientID, action, name)
	}
	return allowed
}

func (a *ACL) decide(rules []Rule, clientID string, action broker.Action, name string) bool {
	for _, owner := range []string{clientID, AnyClient} {
		matched, denied := false, false
		for _, rule := range rules {
			if rule.ClientID != owner || !rule.covers(action, name) {
				continue
			}
			matched = true
			if !rule.Allow {
				denied = true
			}
		}
		if matched {
			return !denied
		}
	}
	return a.defaultAllow
}

// Invalidate 清空缓存，规则变更后调用
func (a *ACL) Invalidate() {
	a.cache.Purge()
}
