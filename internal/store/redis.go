package store

import (
	"context"
	"delitos/internal/aggregate"
	"delitos/internal/logger"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisFlush：管道累计的命令数上限，达到后执行一次
const RedisFlush = 1000

// RedisCounts：发布到 Redis 的条目数
type RedisCounts struct {
	Categories int
	Incidences int
	Commands   int
}

// DictKey / IncidenceKey / MonthsKey：Redis 键名
func DictKey(prefix string) string           { return prefix + ":dicc" }
func IncidenceKey(prefix, cve string) string { return prefix + ":inc:" + cve }
func MonthsKey(prefix, cve string) string    { return prefix + ":fechas:" + cve }
func IncidenceField(ym, mun string) string   { return ym + ":" + mun }

// 文档注释：将一次运行结果发布到 Redis
// 背景：字典写入哈希 <prefix>:dicc（cve → 分类 JSON）；每个分类的次数写入哈希 <prefix>:inc:<cve>
// （字段 YYYY-MM:市镇）；出现过的年月写入集合 <prefix>:fechas:<cve>。
// 约束：rc 为 nil 时不做任何事；命令经管道发送，每 RedisFlush 条执行一次。
func PublishRedis(ctx context.Context, rc *redis.Client, prefix string, snap *aggregate.Snapshot) (RedisCounts, error) {
	var c RedisCounts
	if rc == nil {
		return c, nil
	}
	pipe := rc.Pipeline()
	pending := 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis pipeline: %w", err)
		}
		c.Commands += pending
		pending = 0
		return nil
	}
	queued := func() error {
		pending++
		if pending >= RedisFlush {
			return flush()
		}
		return nil
	}

	for _, cat := range snap.Dictionary {
		b, err := json.Marshal(cat)
		if err != nil {
			return c, err
		}
		pipe.HSet(ctx, DictKey(prefix), cat.Code, string(b))
		if err := queued(); err != nil {
			return c, err
		}
		c.Categories++
	}
	for _, cve := range aggregate.SortedKeys(snap.Incidence) {
		months := snap.Incidence[cve]
		for _, ym := range aggregate.SortedKeys(months) {
			pipe.SAdd(ctx, MonthsKey(prefix, cve), ym)
			if err := queued(); err != nil {
				return c, err
			}
			muns := months[ym]
			for _, mun := range aggregate.SortedKeys(muns) {
				pipe.HSet(ctx, IncidenceKey(prefix, cve), IncidenceField(ym, mun), muns[mun])
				if err := queued(); err != nil {
					return c, err
				}
				c.Incidences++
			}
		}
	}
	if err := flush(); err != nil {
		return c, err
	}
	logger.L().Info("redis_published", "prefix", prefix,
		"categories", c.Categories, "incidences", c.Incidences, "commands", c.Commands)
	return c, nil
}
