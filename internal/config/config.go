// 包 config：集中读取运行配置；无任何环境变量时即为默认行为（输出到 ./datos_procesados_r，不启用外部导出）
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultOutDir     = "./datos_procesados_r"
	DictionaryFile    = "delitos_dicc.csv"
	IncidenceFile     = "delitos.json"
	DefaultSQLiteFile = "delitos.db"
)

// 可选导出目标
const (
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
	SinkRedis    = "redis"
)

// Config：一次运行的全部配置
type Config struct {
	OutDir        string
	Sinks         map[string]bool
	SQLitePath    string
	RedisPrefix   string
	MetricsFile   string
	ExportTimeout time.Duration
}

// LoadDotEnv：加载工作目录下的 .env（不覆盖已有环境变量）；文件缺失不视为错误
func LoadDotEnv() {
	_ = godotenv.Load(".env")
}

// Load：从环境变量构建配置，未设置的项取默认值
func Load() *Config {
	return FromLookup(os.LookupEnv)
}

// FromLookup：以任意查找函数构建配置，便于测试注入
func FromLookup(lookup func(string) (string, bool)) *Config {
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}
	c := &Config{
		OutDir:        DefaultOutDir,
		Sinks:         map[string]bool{},
		RedisPrefix:   "delitos",
		ExportTimeout: 120 * time.Second,
	}
	if v := get("DELITOS_OUT_DIR"); v != "" {
		c.OutDir = v
	}
	for _, s := range strings.Split(get("DELITOS_EXPORT"), ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		switch s {
		case SinkPostgres, SinkSQLite, SinkRedis:
			c.Sinks[s] = true
		}
	}
	c.SQLitePath = filepath.Join(c.OutDir, DefaultSQLiteFile)
	if v := get("DELITOS_SQLITE_PATH"); v != "" {
		c.SQLitePath = v
	}
	if v := get("DELITOS_REDIS_PREFIX"); v != "" {
		c.RedisPrefix = v
	}
	c.MetricsFile = get("DELITOS_METRICS_FILE")
	if v := get("DELITOS_EXPORT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ExportTimeout = time.Duration(n) * time.Second
		}
	}
	return c
}

// DictionaryPath：字典 CSV 的输出路径
func (c *Config) DictionaryPath() string { return filepath.Join(c.OutDir, DictionaryFile) }

// IncidencePath：嵌套 JSON 的输出路径
func (c *Config) IncidencePath() string { return filepath.Join(c.OutDir, IncidenceFile) }

// Enabled：是否启用某个导出目标
func (c *Config) Enabled(sink string) bool { return c.Sinks[sink] }
