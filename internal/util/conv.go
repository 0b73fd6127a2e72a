package util

import (
	"strconv"
	"time"
)

// MustParseUint 将字符串转换为无符号整数，解析失败时返回 0
func MustParseUint(s string) uint {
	id, _ := strconv.ParseUint(s, 10, 32)
	return uint(id)
}

// ParseTimeOfDay 解析 HH:MM:SS，返回当天零点起的偏移
func ParseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse(TimeOfDayFormat, s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}

// ClampPage 规范分页参数
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func FormatUint(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
