// 包 logger：统一初始化与获取日志器；批处理各阶段共用同一输出，级别与格式由环境变量控制
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// 默认日志器：进程级复用，主流程与导出工具共享
var defaultLogger *slog.Logger

// Setup：初始化默认日志器
// 背景：日志只服务于运维排查，固定写到标准错误；标准输出保留给致命诊断行
// 约束：LOG_LEVEL 取 debug/info/warn/error，LOG_FORMAT 为 json 时输出结构化行
func Setup() *slog.Logger {
	return SetupWriter(os.Stderr)
}

// SetupWriter：以指定输出初始化默认日志器，测试中用于捕获日志
func SetupWriter(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}
	var h slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	defaultLogger = slog.New(h)
	return defaultLogger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// L：获取默认日志器；若未初始化则回退到 Setup
func L() *slog.Logger {
	if defaultLogger == nil {
		return Setup()
	}
	return defaultLogger
}
