package migrate

import (
	"context"
	"database/sql"
	"delitos/internal/logger"
	"strconv"
	"strings"
)

// Dialect：导出目标的 SQL 方言
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Rebind：将以 ? 书写的占位符转换为目标方言（PostgreSQL 使用 $1..$n）
func Rebind(d Dialect, q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// 背景：首次导出时创建所需表与索引；两种方言共用同一份 DDL
// 约束：使用 IF NOT EXISTS，重复执行无副作用
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS delitos_categorias (
            cve TEXT PRIMARY KEY,
            tipo TEXT NOT NULL,
            subtipo TEXT NOT NULL,
            modalidad TEXT NOT NULL,
            cvetpo TEXT NOT NULL,
            cvesub TEXT NOT NULL,
            cvemod TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS delitos_claves (
            kind TEXT NOT NULL,
            label TEXT NOT NULL,
            code TEXT NOT NULL,
            ordinal INTEGER NOT NULL,
            PRIMARY KEY (kind, label)
        )`,
		`CREATE TABLE IF NOT EXISTS delitos_incidencias (
            cve TEXT NOT NULL,
            fecha TEXT NOT NULL,
            municipio TEXT NOT NULL,
            incidencias BIGINT NOT NULL,
            PRIMARY KEY (cve, fecha, municipio)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_incidencias_fecha ON delitos_incidencias(fecha)`,
		`CREATE INDEX IF NOT EXISTS idx_incidencias_municipio ON delitos_incidencias(municipio)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "dialect", string(d), "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done", "dialect", string(d))
	return nil
}
