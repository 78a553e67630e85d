// 包 pipeline：单次遍历的驱动；逐行 解码 → 绑定 → 编码 → 聚合
package pipeline

import (
	"delitos/internal/aggregate"
	"delitos/internal/decode"
	"delitos/internal/record"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Result：一次遍历的产出与计数
type Result struct {
	Aggregator *aggregate.Aggregator
	Header     []string
	Rows       int
	Skipped    int
}

// Run：读取整个 CSV 流并聚合
// 约束：CSV 分帧错误（字段数不符）跳过该行继续；解码后无法绑定的行返回 *record.SchemaError 终止；
// 其他读取错误视为 I/O 错误直接返回。空输入视为没有记录，正常返回
func Run(r io.Reader, l *slog.Logger) (*Result, error) {
	if l == nil {
		l = slog.Default()
	}
	dec := decode.New()
	cr := csv.NewReader(r)
	// 字段中间的引号按字面保留，只有字段开头的引号开启引用
	cr.LazyQuotes = true

	res := &Result{Aggregator: aggregate.New()}
	raw, err := cr.Read()
	if err == io.EOF {
		l.Warn("input_empty")
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	res.Header = dec.Strings(raw)
	schema, err := record.NewSchema(res.Header)
	if err != nil {
		return nil, err
	}
	if m := schema.Missing(); len(m) > 0 {
		l.Debug("header_missing_columns", "columns", m)
	}

	for {
		raw, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				res.Skipped++
				l.Debug("row_skipped", "line", pe.Line, "err", pe.Err)
				continue
			}
			return nil, fmt.Errorf("read input: %w", err)
		}
		row := dec.Strings(raw)
		rec, err := schema.Parse(row)
		if err != nil {
			return nil, err
		}
		res.Aggregator.Add(rec)
		res.Rows++
		if res.Rows%100000 == 0 {
			l.Info("pipeline_progress", "rows", res.Rows, "skipped", res.Skipped)
		}
	}
	st := res.Aggregator.Stats()
	l.Info("pipeline_done",
		"rows", res.Rows,
		"skipped", res.Skipped,
		"categories", st.Categories,
		"triples", st.Triples,
		"overwrites", st.Overwrites,
	)
	return res, nil
}
