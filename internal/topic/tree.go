package topic

import "strings"

// Subscription is unique per (ClientID, Filter).
type Subscription struct {
	ClientID string
	Filter   string
	QoS      byte
}

// treeNode 主题订阅树节点
type treeNode struct {
	level  string
	parent *treeNode

	// 直接子节点（精确匹配）
	children map[string]*treeNode

	// "+" 通配符子节点（单层）
	wildcardPlus *treeNode

	// 以当前节点为前缀的 "#" 订阅（多层），key=ClientID
	wildcardHash map[string]Subscription

	// 当前路径的精确订阅，key=ClientID
	terminals map[string]Subscription
}

func newTreeNode(parent *treeNode, level string) *treeNode {
	return &treeNode{
		level:        level,
		parent:       parent,
		children:     make(map[string]*treeNode),
		wildcardHash: make(map[string]Subscription),
		terminals:    make(map[string]Subscription),
	}
}

func (n *treeNode) empty() bool {
	return len(n.children) == 0 && n.wildcardPlus == nil && len(n.wildcardHash) == 0 && len(n.terminals) == 0
}

func (n *treeNode) child(level string, create bool) *treeNode {
	if level == SingleLevel {
		if n.wildcardPlus == nil && create {
			n.wildcardPlus = newTreeNode(n, level)
		}
		return n.wildcardPlus
	}
	c, ok := n.children[level]
	if !ok && create {
		c = newTreeNode(n, level)
		n.children[level] = c
	}
	return c
}

// Matcher indexes subscriptions in a per-level tree so a publish costs O(depth)
// instead of a scan over every filter. It is not safe for concurrent use; the
// broker serializes access.
type Matcher struct {
	root  *treeNode
	count int
}

func NewMatcher() *Matcher {
	return &Matcher{root: newTreeNode(nil, "")}
}

// Subscribe inserts sub or replaces the QoS of an existing (ClientID, Filter) pair.
// The filter must have passed ValidateFilter.
func (m *Matcher) Subscribe(sub Subscription) {
	levels := strings.Split(sub.Filter, Separator)
	node := m.root
	hash := levels[len(levels)-1] == MultiLevel
	if hash {
		levels = levels[:len(levels)-1]
	}
	for _, level := range levels {
		node = node.child(level, true)
	}

	target := node.terminals
	if hash {
		target = node.wildcardHash
	}
	if _, ok := target[sub.ClientID]; !ok {
		m.count++
	}
	target[sub.ClientID] = sub
}

// Unsubscribe removes the (clientID, filter) pair and reports whether it existed.
func (m *Matcher) Unsubscribe(clientID, filter string) bool {
	levels := strings.Split(filter, Separator)
	node := m.root
	hash := levels[len(levels)-1] == MultiLevel
	if hash {
		levels = levels[:len(levels)-1]
	}
	for _, level := range levels {
		if node = node.child(level, false); node == nil {
			return false
		}
	}

	target := node.terminals
	if hash {
		target = node.wildcardHash
	}
	if _, ok := target[clientID]; !ok {
		return false
	}
	delete(target, clientID)
	m.count--
	m.prune(node)
	return true
}

func (m *Matcher) prune(node *treeNode) {
	for node != m.root && node.empty() {
		parent := node.parent
		if node.level == SingleLevel {
			parent.wildcardPlus = nil
		} else {
			delete(parent.children, node.level)
		}
		node = parent
	}
}

// Match returns every subscription whose filter matches topic.
func (m *Matcher) Match(topic string) []Subscription {
	levels := strings.Split(topic, Separator)
	system := isSystemTopic(topic)

	var results []Subscription
	queue := []*treeNode{m.root}

	for i, level := range levels {
		var next []*treeNode

		// 遍历当前层所有可能匹配的节点
		for _, node := range queue {
			wildcardAllowed := !(system && i == 0)

			if wildcardAllowed {
				results = appendSubs(results, node.wildcardHash)
			}
			if c, ok := node.children[level]; ok {
				next = append(next, c)
			}
			if wildcardAllowed && node.wildcardPlus != nil {
				next = append(next, node.wildcardPlus)
			}
		}

		queue = next
		if len(queue) == 0 {
			return results
		}
	}

	// 主题层级耗尽：精确订阅以及匹配零层的 "#"
	for _, node := range queue {
		results = appendSubs(results, node.terminals)
		results = appendSubs(results, node.wildcardHash)
	}
	return results
}

// Len returns the number of stored subscriptions.
func (m *Matcher) Len() int {
	return m.count
}

func appendSubs(dst []Subscription, subs map[string]Subscription) []Subscription {
	for _, sub := range subs {
		dst = append(dst, sub)
	}
	return dst
}
