// 包 store: 将一次运行的字典、编码表与发生数映射写入 SQL 存储（PostgreSQL 或 SQLite）
package store

import (
	"context"
	"database/sql"
	"delitos/internal/aggregate"
	"delitos/internal/coder"
	"delitos/internal/logger"
	"delitos/internal/migrate"
	"fmt"
)

// DefaultBatch：每批提交的行数
const DefaultBatch = 5000

const (
	qCategory = `INSERT INTO delitos_categorias(cve,tipo,subtipo,modalidad,cvetpo,cvesub,cvemod) VALUES(?,?,?,?,?,?,?)
        ON CONFLICT (cve) DO UPDATE SET tipo=excluded.tipo, subtipo=excluded.subtipo, modalidad=excluded.modalidad,
        cvetpo=excluded.cvetpo, cvesub=excluded.cvesub, cvemod=excluded.cvemod`
	qCode = `INSERT INTO delitos_claves(kind,label,code,ordinal) VALUES(?,?,?,?)
        ON CONFLICT (kind, label) DO UPDATE SET code=excluded.code, ordinal=excluded.ordinal`
	qIncidence = `INSERT INTO delitos_incidencias(cve,fecha,municipio,incidencias) VALUES(?,?,?,?)
        ON CONFLICT (cve, fecha, municipio) DO UPDATE SET incidencias=excluded.incidencias`
)

// Store: 数据库访问入口
type Store struct {
	db      *sql.DB
	dialect migrate.Dialect
	Batch   int
}

func AttachDB(db *sql.DB, d migrate.Dialect) *Store {
	return &Store{db: db, dialect: d, Batch: DefaultBatch}
}

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

// Counts: 导出写入的行数
type Counts struct {
	Categories int
	Codes      int
	Incidences int
}

// batchTx: 事务加预编译语句；写满一批提交并重新开启
type batchTx struct {
	s     *Store
	tx    *sql.Tx
	stmts map[string]*sql.Stmt
	n     int
}

func (s *Store) begin(ctx context.Context) (*batchTx, error) {
	b := &batchTx{s: s}
	return b, b.open(ctx)
}

func (b *batchTx) open(ctx context.Context) error {
	tx, err := b.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	b.tx = tx
	b.stmts = map[string]*sql.Stmt{}
	return nil
}

func (b *batchTx) exec(ctx context.Context, q string, args ...any) error {
	st, ok := b.stmts[q]
	if !ok {
		var err error
		st, err = b.tx.PrepareContext(ctx, migrate.Rebind(b.s.dialect, q))
		if err != nil {
			return err
		}
		b.stmts[q] = st
	}
	if _, err := st.ExecContext(ctx, args...); err != nil {
		return err
	}
	b.n++
	if b.n%b.s.Batch == 0 {
		logger.L().Info("export_progress", "dialect", string(b.s.dialect), "rows", b.n)
		if err := b.commit(); err != nil {
			return err
		}
		return b.open(ctx)
	}
	return nil
}

func (b *batchTx) commit() error {
	for _, st := range b.stmts {
		_ = st.Close()
	}
	return b.tx.Commit()
}

func (b *batchTx) rollback() {
	for _, st := range b.stmts {
		_ = st.Close()
	}
	_ = b.tx.Rollback()
}

// 文档注释：导出一次运行的全部结果
// 背景：按 DefaultBatch 行一批提交，降低锁持有时间；UPSERT 使同一结果重复导出保持幂等。
// 约束：发生数按（分类, 年月, 市镇）升序写入；失败时回滚当前批次并返回错误，已提交批次保留。
func (s *Store) Export(ctx context.Context, snap *aggregate.Snapshot) (Counts, error) {
	var c Counts
	if s.Batch <= 0 {
		s.Batch = DefaultBatch
	}
	if err := migrate.EnsureSchema(ctx, s.db, s.dialect); err != nil {
		return c, fmt.Errorf("ensure schema: %w", err)
	}
	logger.L().Info("export_start", "dialect", string(s.dialect), "categories", len(snap.Dictionary))
	b, err := s.begin(ctx)
	if err != nil {
		return c, err
	}
	fail := func(err error) (Counts, error) {
		b.rollback()
		return c, err
	}

	for _, cat := range snap.Dictionary {
		if err := b.exec(ctx, qCategory, cat.Code, cat.Type, cat.Subtype, cat.Modality, cat.TypeCode, cat.SubtypeCode, cat.ModalityCode); err != nil {
			return fail(fmt.Errorf("category %s: %w", cat.Code, err))
		}
		c.Categories++
	}
	for _, k := range coder.Kinds() {
		for _, e := range snap.Codes[k] {
			if err := b.exec(ctx, qCode, k.String(), e.Label, e.Code, e.Ordinal); err != nil {
				return fail(fmt.Errorf("code %s: %w", e.Code, err))
			}
			c.Codes++
		}
	}
	for _, cve := range aggregate.SortedKeys(snap.Incidence) {
		months := snap.Incidence[cve]
		for _, ym := range aggregate.SortedKeys(months) {
			muns := months[ym]
			for _, mun := range aggregate.SortedKeys(muns) {
				if err := b.exec(ctx, qIncidence, cve, ym, mun, int64(muns[mun])); err != nil {
					return fail(fmt.Errorf("incidence %s %s %s: %w", cve, ym, mun, err))
				}
				c.Incidences++
			}
		}
	}
	if err := b.commit(); err != nil {
		return c, err
	}
	logger.L().Info("export_done", "dialect", string(s.dialect),
		"categories", c.Categories, "codes", c.Codes, "incidences", c.Incidences)
	return c, nil
}

// Totals: 存储中的分类数与发生数三元组数
func (s *Store) Totals(ctx context.Context) (categories, incidences int64, err error) {
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM delitos_categorias").Scan(&categories); err != nil {
		return
	}
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM delitos_incidencias").Scan(&incidences)
	return
}

// Incidence: 查询单个三元组的次数；不存在时返回 0
func (s *Store) Incidence(ctx context.Context, cve, ym, mun string) (uint32, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		migrate.Rebind(s.dialect, "SELECT incidencias FROM delitos_incidencias WHERE cve=? AND fecha=? AND municipio=?"),
		cve, ym, mun).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// Category: 按复合编码读取字典项
func (s *Store) Category(ctx context.Context, cve string) (*aggregate.Category, error) {
	var c aggregate.Category
	err := s.db.QueryRowContext(ctx,
		migrate.Rebind(s.dialect, "SELECT cve,tipo,subtipo,modalidad,cvetpo,cvesub,cvemod FROM delitos_categorias WHERE cve=?"), cve,
	).Scan(&c.Code, &c.Type, &c.Subtype, &c.Modality, &c.TypeCode, &c.SubtypeCode, &c.ModalityCode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
