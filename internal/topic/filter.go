// Package topic 实现了主题过滤器校验、通配符匹配以及保留消息存储
package topic

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	Separator      = "/"
	SingleLevel    = "+"
	MultiLevel     = "#"
	systemTopicTag = '$'
)

var (
	ErrInvalidFilter = errors.New("invalid topic filter")
	ErrInvalidTopic  = errors.New("invalid topic name")
)

// ValidateFilter checks a subscription filter before it reaches any storage.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty filter", ErrInvalidFilter)
	}
	if !utf8.ValidString(filter) || strings.ContainsRune(filter, 0) {
		return fmt.Errorf("%w: %q contains illegal characters", ErrInvalidFilter, filter)
	}

	levels := strings.Split(filter, Separator)
	for i, level := range levels {
		switch {
		case level == MultiLevel:
			if i != len(levels)-1 {
				return fmt.Errorf("%w: '#' must be the last level, filter: %s", ErrInvalidFilter, filter)
			}
		case level == SingleLevel:
		case strings.ContainsAny(level, SingleLevel+MultiLevel):
			return fmt.Errorf("%w: wildcard must occupy a whole level, filter: %s", ErrInvalidFilter, filter)
		}
	}
	return nil
}

// ValidateTopic checks a topic name used for PUBLISH.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, SingleLevel+MultiLevel) {
		return fmt.Errorf("%w: %s contains wildcards", ErrInvalidTopic, topic)
	}
	if !utf8.ValidString(topic) || strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: %q contains illegal characters", ErrInvalidTopic, topic)
	}
	return nil
}

// Match reports whether topic matches filter.
//
// '+' consumes exactly one level, a trailing '#' consumes every remaining level
// including none, any other level must be equal. Topics starting with '$' are
// never matched by a filter whose first level is a wildcard.
func Match(filter, topic string) bool {
	filterLevels := strings.Split(filter, Separator)
	topicLevels := strings.Split(topic, Separator)

	if isSystemTopic(topic) && isWildcard(filterLevels[0]) {
		return false
	}

	for i, level := range filterLevels {
		if level == MultiLevel {
			return i == len(filterLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if level != SingleLevel && level != topicLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(topicLevels)
}

// Covers reports whether every topic matched by sub is also matched by filter.
// Both arguments must be valid filters.
func Covers(filter, sub string) bool {
	filterLevels := strings.Split(filter, Separator)
	subLevels := strings.Split(sub, Separator)

	if isSystemTopic(sub) && isWildcard(filterLevels[0]) {
		return false
	}

	for i, level := range filterLevels {
		if level == MultiLevel {
			return true
		}
		if i >= len(subLevels) {
			return false
		}
		switch subLevels[i] {
		case MultiLevel:
			return false
		case SingleLevel:
			if level != SingleLevel {
				return false
			}
		default:
			if level != SingleLevel && level != subLevels[i] {
				return false
			}
		}
	}
	return len(filterLevels) == len(subLevels)
}

// Overlaps reports whether at least one topic is matched by both filters.
func Overlaps(a, b string) bool {
	aLevels := strings.Split(a, Separator)
	bLevels := strings.Split(b, Separator)

	if (isSystemTopic(a) && isWildcard(bLevels[0])) || (isSystemTopic(b) && isWildcard(aLevels[0])) {
		return false
	}

	n := min(len(aLevels), len(bLevels))
	for i := 0; i < n; i++ {
		x, y := aLevels[i], bLevels[i]
		if x == MultiLevel || y == MultiLevel {
			return true
		}
		if x != SingleLevel && y != SingleLevel && x != y {
			return false
		}
	}
	if len(aLevels) == len(bLevels) {
		return true
	}
	// 较长一方只能多出一个匹配父级的 '#'
	longer := aLevels
	if len(bLevels) > len(aLevels) {
		longer = bLevels
	}
	return len(longer) == n+1 && longer[n] == MultiLevel
}

func isWildcard(level string) bool {
	return level == SingleLevel || level == MultiLevel
}

func isSystemTopic(topic string) bool {
	return topic != "" && topic[0] == systemTopicTag
}
