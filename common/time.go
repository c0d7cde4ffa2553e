package common

import (
	"time"
)

// ISO8601Format 记录时间使用的格式,UTC
const ISO8601Format = time.RFC3339Nano

// UnixMills 取得毫秒
func UnixMills(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// UnixMillsTime 毫秒转为时间
func UnixMillsTime(tmillis int64) time.Time {
	return time.Unix(tmillis/1000, (tmillis%1000)*int64(time.Millisecond))
}

// FormatISO8601 将t转为UTC的ISO-8601字符串
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(ISO8601Format)
}

// ParseISO8601 解析ISO-8601时间
func ParseISO8601(s string) (time.Time, error) {
	return time.Parse(ISO8601Format, s)
}

// Clock 时间源,测试中可以替换
type Clock func() time.Time

// SystemClock 系统时间
func SystemClock() time.Time {
	return time.Now()
}
