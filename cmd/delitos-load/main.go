// 导入工具：读回输出目录中的字典 CSV 与嵌套 JSON，写入 DELITOS_EXPORT 指定的数据库或 Redis；不重新读取源 CSV
package main

import (
	"context"
	"delitos/internal/aggregate"
	"delitos/internal/config"
	"delitos/internal/export"
	"delitos/internal/logger"
	"delitos/internal/metrics"
	"delitos/internal/store"
	"errors"
	"os"
	"time"
)

var errNoSinks = errors.New("DELITOS_EXPORT is empty")

func main() {
	config.LoadDotEnv()
	l := logger.Setup()
	if err := run(context.Background(), config.Load(), store.DefaultOpeners()); err != nil {
		l.Error("load_error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, op store.Openers) error {
	l := logger.L()
	if len(cfg.Sinks) == 0 {
		return errNoSinks
	}
	done := logger.Stage(l, "load")
	dict, inc, err := export.LoadArtifacts(cfg.DictionaryPath(), cfg.IncidencePath())
	metrics.ObserveStage("load", done())
	if err != nil {
		return err
	}
	snap := aggregate.NewSnapshot(dict, inc)
	l.Info("artifacts_loaded", "categories", len(snap.Dictionary), "incidences", snap.Incidence.Triples())
	if err := store.Publish(ctx, cfg, op, snap, l); err != nil {
		return err
	}
	metrics.MarkSuccess(time.Now())
	if err := metrics.WriteFile(cfg.MetricsFile); err != nil {
		l.Warn("metrics_write_error", "path", cfg.MetricsFile, "err", err)
	}
	return nil
}
