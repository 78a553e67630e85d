package store

import (
	"context"
	"database/sql"
	"delitos/internal/aggregate"
	"delitos/internal/config"
	"delitos/internal/metrics"
	"delitos/internal/migrate"
	"delitos/internal/utils"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Openers：各导出目标的连接构造；测试中可替换
type Openers struct {
	Postgres func() (*sql.DB, error)
	SQLite   func(path string) (*sql.DB, error)
	Redis    func() RedisTarget
}

// RedisTarget：PublishRedis 所需的最小客户端集合
type RedisTarget struct {
	Client  interface{ Close() error }
	Publish func(ctx context.Context, prefix string, snap *aggregate.Snapshot) (RedisCounts, error)
}

// DefaultOpeners：从环境变量打开连接
func DefaultOpeners() Openers {
	return Openers{
		Postgres: utils.OpenPostgresFromEnv,
		SQLite:   utils.OpenSQLite,
		Redis: func() RedisTarget {
			rc := utils.OpenRedisFromEnv()
			return RedisTarget{
				Client: rc,
				Publish: func(ctx context.Context, prefix string, snap *aggregate.Snapshot) (RedisCounts, error) {
					return PublishRedis(ctx, rc, prefix, snap)
				},
			}
		},
	}
}

// 文档注释：依次导出到配置中启用的目标（postgres → sqlite → redis）
// 背景：每个目标独立超时（cfg.ExportTimeout）；某个目标失败不影响其余目标。
// 返回：全部失败原因合并后的 error；未启用任何目标时返回 nil。
func Publish(ctx context.Context, cfg *config.Config, op Openers, snap *aggregate.Snapshot, l *slog.Logger) error {
	var errs []error
	run := func(sink string, fn func(ctx context.Context) error) {
		if !cfg.Enabled(sink) {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, cfg.ExportTimeout)
		defer cancel()
		start := time.Now()
		err := fn(cctx)
		metrics.ObserveStage("export_"+sink, time.Since(start))
		metrics.ObserveExport(sink, err)
		if err != nil {
			l.Error("export_error", "sink", sink, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink, err))
			return
		}
		l.Info("export_ok", "sink", sink, "elapsed_ms", time.Since(start).Milliseconds())
	}

	run(config.SinkPostgres, func(ctx context.Context) error {
		db, err := op.Postgres()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		return exportSQL(ctx, AttachDB(db, migrate.Postgres), snap, l)
	})
	run(config.SinkSQLite, func(ctx context.Context) error {
		db, err := op.SQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		return exportSQL(ctx, AttachDB(db, migrate.SQLite), snap, l)
	})
	run(config.SinkRedis, func(ctx context.Context) error {
		t := op.Redis()
		if t.Client != nil {
			defer t.Client.Close()
		}
		_, err := t.Publish(ctx, cfg.RedisPrefix, snap)
		return err
	})
	return errors.Join(errs...)
}

// exportSQL：导出后读回表内总数写入日志；总数包含此前运行留下的行
func exportSQL(ctx context.Context, st *Store, snap *aggregate.Snapshot, l *slog.Logger) error {
	if _, err := st.Export(ctx, snap); err != nil {
		return err
	}
	cats, incs, err := st.Totals(ctx)
	if err != nil {
		return fmt.Errorf("totals: %w", err)
	}
	l.Info("export_totals", "dialect", string(st.dialect), "categories", cats, "incidences", incs)
	return nil
}
