package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		pt     PacketType
		flags  byte
		expect bool
	}{
		{CONNECT, 0x00, true},  // 合法
		{CONNECT, 0x01, false}, // 非法
		{PUBREL, 0x02, true},   // 合法
		{PUBREL, 0x03, false},  // 非法
		{PUBLISH, 0x0F, true},  // 允许所有标志位
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expect, ValidateFlags(tt.pt, tt.flags), "类型=%s 标志=%04b", tt.pt, tt.flags)
	}
}

func TestPacketTypeString(t *testing.T) {
	assert.Equal(t, "PUBLISH", PUBLISH.String())
	assert.Equal(t, "UNKNOWN(15)", PacketType(15).String())
}
