package topic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceMatch walks filter and topic levels left to right without any shortcuts.
func referenceMatch(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	if strings.HasPrefix(topic, "$") && (f[0] == "+" || f[0] == "#") {
		return false
	}
	i := 0
	for ; i < len(f); i++ {
		if f[i] == "#" && i == len(f)-1 {
			return true
		}
		if i >= len(t) {
			return false
		}
		if f[i] != "+" && f[i] != t[i] {
			return false
		}
	}
	return i == len(t)
}

var (
	sampleFilters = []string{
		"#", "+", "+/+", "/", "/+", "+/", "a", "a/b", "a/+", "a/#", "a/+/c", "a/b/c", "a/+/#",
		"+/b/#", "home/+", "home/temp", "$SYS/#", "$SYS/+", "+/monitor", "", "a//c", "a/+/+",
	}
	sampleTopics = []string{
		"", "/", "//", "a", "a/", "/a", "a/b", "a/c", "a/b/c", "a/x/c", "a/b/c/d", "a//c",
		"home/temp", "home", "home/temp/x", "$SYS", "$SYS/monitor", "b/monitor", "x/b/y",
	}
)

func TestMatchAgreesWithReference(t *testing.T) {
	for _, filter := range sampleFilters {
		for _, tp := range sampleTopics {
			assert.Equal(t, referenceMatch(filter, tp), Match(filter, tp), "filter=%q topic=%q", filter, tp)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"#", "", true},
		{"#", "/", true},
		{"#", "a/b/c", true},
		{"+", "", true},
		{"+", "/", false},
		{"+/+", "/", true},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/c", false},
		{"a/+/c", "a/b/c/d", false},
		{"a/#", "a", true},
		{"a/#", "a/b/c", true},
		{"a/#", "b", false},
		{"a/b", "a/b", true},
		{"a/b", "a/b/", false},
		{"#", "$SYS/monitor", false},
		{"+/monitor", "$SYS/monitor", false},
		{"$SYS/#", "$SYS/monitor", true},
		{"$SYS/#", "$SYS", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(tt.filter, tt.topic), "filter=%q topic=%q", tt.filter, tt.topic)
	}
}

func TestCovers(t *testing.T) {
	tests := []struct {
		filter string
		sub    string
		want   bool
	}{
		{"sensors/+", "sensors/a", true},
		{"sensors/+", "sensors/+", true},
		{"sensors/+", "sensors/#", false},
		{"sensors/+", "sensors/a/b", false},
		{"sensors/a", "sensors/+", false},
		{"sensors/#", "sensors/#", true},
		{"sensors/#", "sensors/+/temp", true},
		{"sensors/#", "sensors", true},
		{"sensors/+/#", "sensors/#", false},
		{"sensors/+/#", "sensors/a/#", true},
		{"#", "#", true},
		{"#", "$SYS/#", false},
		{"+/monitor", "$SYS/monitor", false},
		{"$SYS/#", "$SYS/+", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Covers(tt.filter, tt.sub), "filter=%q sub=%q", tt.filter, tt.sub)
	}
}

func TestCoversAgreesWithMatchOnTopics(t *testing.T) {
	for _, filter := range sampleFilters {
		if ValidateFilter(filter) != nil {
			continue
		}
		for _, tp := range sampleTopics {
			assert.Equal(t, Match(filter, tp), Covers(filter, tp), "filter=%q topic=%q", filter, tp)
		}
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"sensors/secret", "sensors/+", true},
		{"sensors/secret", "sensors/#", true},
		{"sensors/secret", "sensors/public/+", false},
		{"a/+/c", "a/b/+", true},
		{"a/b", "a/b/c", false},
		{"a/#", "a", true},
		{"a", "a/#", true},
		{"a/b/#", "a", false},
		{"#", "$SYS/x", false},
		{"$SYS/#", "$SYS/+", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Overlaps(tt.a, tt.b), "a=%q b=%q", tt.a, tt.b)
		assert.Equal(t, tt.want, Overlaps(tt.b, tt.a), "a=%q b=%q", tt.b, tt.a)
	}
}

func TestValidateFilter(t *testing.T) {
	valid := []string{"#", "+", "a/b", "a/+/c", "a/#", "+/+/#", "/", "$SYS/#"}
	for _, filter := range valid {
		assert.NoError(t, ValidateFilter(filter), filter)
	}

	invalid := []string{"", "a/#/b", "#/a", "a+", "a/b+/c", "a/#b", "##", "+a/b", "a/\x00"}
	for _, filter := range invalid {
		err := ValidateFilter(filter)
		require.Error(t, err, filter)
		assert.ErrorIs(t, err, ErrInvalidFilter, filter)
	}
}

func TestValidateTopic(t *testing.T) {
	assert.NoError(t, ValidateTopic("home/temp"))
	assert.NoError(t, ValidateTopic("/"))
	assert.ErrorIs(t, ValidateTopic(""), ErrInvalidTopic)
	assert.ErrorIs(t, ValidateTopic("home/+"), ErrInvalidTopic)
	assert.ErrorIs(t, ValidateTopic("home/#"), ErrInvalidTopic)
	assert.ErrorIs(t, ValidateTopic("a\x00b"), ErrInvalidTopic)
}
