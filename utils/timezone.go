package utils

import (
	"time"
)

var (
	// GlobalLocation 全局配置的时区（收盘日期按此时区计算）
	GlobalLocation *time.Location
)

func init() {
	// 默认使用利雅得时区（UTC+3）
	SetLocation("Asia/Riyadh")
}

// SetLocation 设置全局时区
func SetLocation(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// 系统缺少 tzdata 时的兜底
		if name == "UTC+3" || name == "Asia/Riyadh" {
			GlobalLocation = time.FixedZone("UTC+3", 3*60*60)
			return nil
		}
		if GlobalLocation == nil {
			GlobalLocation = time.Local
		}
		return err
	}
	GlobalLocation = loc
	return nil
}

// ToConfiguredTimezone 将时间转换为配置的时区
func ToConfiguredTimezone(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(GlobalLocation)
}

// NowConfiguredTimezone 获取当前配置时区的时间
func NowConfiguredTimezone() time.Time {
	return time.Now().In(GlobalLocation)
}

// DateOf 返回 t 在配置时区中的日期（当天零点）
func DateOf(t time.Time) time.Time {
	local := t.In(GlobalLocation)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, GlobalLocation)
}
