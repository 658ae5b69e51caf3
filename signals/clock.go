package signals

import "time"

// Clock 时间来源（测试中可替换）
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock 返回系统时钟
func SystemClock() Clock {
	return systemClock{}
}
