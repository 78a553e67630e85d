package logger

import (
	"log/slog"
	"time"
)

// Stage：记录一个处理阶段的起止与耗时
// 背景：批处理没有请求维度，按阶段（读取、写字典、写 JSON、导出）统计耗时即可定位瓶颈
// 用法：done := logger.Stage(l, "write_json"); ...; d := done("bytes", n)
func Stage(l *slog.Logger, name string) func(attrs ...any) time.Duration {
	if l == nil {
		l = L()
	}
	start := time.Now()
	l.Debug("stage_begin", "stage", name)
	return func(attrs ...any) time.Duration {
		dur := time.Since(start)
		args := append([]any{"stage", name, "duration_ms", dur.Milliseconds()}, attrs...)
		l.Debug("stage_done", args...)
		return dur
	}
}
