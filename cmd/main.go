// 程序入口：读取 Windows-1252 编码的犯罪发生数 CSV，写出分类字典与按月按市镇的嵌套 JSON；可选导出到数据库与 Redis
package main

import (
	"context"
	"delitos/internal/aggregate"
	"delitos/internal/config"
	"delitos/internal/export"
	"delitos/internal/logger"
	"delitos/internal/metrics"
	"delitos/internal/pipeline"
	"delitos/internal/record"
	"delitos/internal/store"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, store.DefaultOpeners()))
}

// 文档注释：一次完整运行，返回进程退出码
// 约束：致命错误在 stdout 打印一行诊断（结构错误先打印该行内容）并返回 1；日志只写 stderr。
func run(args []string, stdout io.Writer, op store.Openers) int {
	if len(args) < 1 {
		fmt.Fprintln(stdout, "no se pudo leer el argumento")
		return 1
	}
	config.LoadDotEnv()
	l := logger.Setup()
	cfg := config.Load()
	l.Debug("config_loaded", "out_dir", cfg.OutDir, "sinks", len(cfg.Sinks))
	started := time.Now()

	in, err := os.Open(args[0])
	if err != nil {
		l.Error("input_open_error", "path", args[0], "err", err)
		fmt.Fprintln(stdout, err)
		return 1
	}
	defer in.Close()

	done := logger.Stage(l, "pipeline")
	res, err := pipeline.Run(in, l)
	metrics.ObserveStage("pipeline", done())
	if err != nil {
		var se *record.SchemaError
		if errors.As(err, &se) && se.Row != nil {
			fmt.Fprintf(stdout, "%q\n", se.Row)
		}
		l.Error("pipeline_error", "err", err)
		fmt.Fprintln(stdout, err)
		return 1
	}
	metrics.ObserveRun(res.Rows, res.Skipped, res.Aggregator.Stats())

	snap := res.Aggregator.Snapshot()
	if err := writeArtifacts(cfg, snap, l); err != nil {
		l.Error("write_error", "err", err)
		fmt.Fprintln(stdout, err)
		return 1
	}

	code := 0
	if err := store.Publish(context.Background(), cfg, op, snap, l); err != nil {
		fmt.Fprintln(stdout, err)
		code = 1
	}
	if code == 0 {
		metrics.MarkSuccess(time.Now())
	}
	if err := metrics.WriteFile(cfg.MetricsFile); err != nil {
		l.Warn("metrics_write_error", "path", cfg.MetricsFile, "err", err)
	}
	l.Info("run_done", "rows", res.Rows, "skipped", res.Skipped,
		"categories", len(snap.Dictionary), "elapsed_ms", time.Since(started).Milliseconds())
	return code
}

// writeArtifacts：创建输出目录并原子写入两个产物
func writeArtifacts(cfg *config.Config, snap *aggregate.Snapshot, l *slog.Logger) error {
	done := logger.Stage(l, "write")
	defer func() { metrics.ObserveStage("write", done()) }()
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return err
	}
	if err := export.WriteFileAtomic(cfg.DictionaryPath(), func(w io.Writer) error {
		return export.WriteDictionary(w, snap.Dictionary)
	}); err != nil {
		return fmt.Errorf("write %s: %w", cfg.DictionaryPath(), err)
	}
	if err := export.WriteFileAtomic(cfg.IncidencePath(), func(w io.Writer) error {
		return export.WriteIncidence(w, snap.Incidence)
	}); err != nil {
		return fmt.Errorf("write %s: %w", cfg.IncidencePath(), err)
	}
	l.Info("artifacts_written", "dictionary", cfg.DictionaryPath(), "incidence", cfg.IncidencePath())
	return nil
}
