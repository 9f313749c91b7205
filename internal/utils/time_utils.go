package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidTimeFormat = errors.New("invalid time format")

var timeUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParseStringTime 解析形如 10s, 20m, 48h, 2d 的时间字符串，单位不区分大小写。
// 纯数字 0 表示不限制
func ParseStringTime(timeString string) (time.Duration, error) {
	timeString = strings.ToLower(strings.TrimSpace(timeString))
	if timeString == "0" {
		return 0, nil
	}
	if len(timeString) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, timeString)
	}

	unit, ok := timeUnits[timeString[len(timeString)-1]]
	if !ok {
		return 0, fmt.Errorf("%w: %q has no known unit", ErrInvalidTimeFormat, timeString)
	}
	number, err := strconv.Atoi(timeString[:len(timeString)-1])
	if err != nil || number < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, timeString)
	}
	return time.Duration(number) * unit, nil
}

// FormatDuration 是 ParseStringTime 的逆操作，选取能整除的最大单位
func FormatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "0"
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}
