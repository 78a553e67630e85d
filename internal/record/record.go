// 包 record：按表头名称将解码后的行绑定为类型化记录
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// 源数据表头（精确拼写，含重音与空格）
const (
	ColYear             = "Año"
	ColStateCode        = "Clave_Ent"
	ColStateName        = "Entidad"
	ColMunicipalityCode = "Cve. Municipio"
	ColMunicipalityName = "Municipio"
	ColLegalGood        = "Bien jurídico afectado"
	ColType             = "Tipo de delito"
	ColSubtype          = "Subtipo de delito"
	ColModality         = "Modalidad"
)

// MonthColumns：十二个月份列，下标 0 对应一月
var MonthColumns = [12]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

const (
	StateCodeWidth        = 2
	MunicipalityCodeWidth = 5
)

var (
	ErrMissingColumn   = errors.New("missing column")
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrBadYear         = errors.New("invalid year")
)

// Record：一行源数据的类型化表示
type Record struct {
	Year             uint32
	StateCode        string
	StateName        string
	MunicipalityCode string
	MunicipalityName string
	LegalGood        string
	Type             string
	Subtype          string
	Modality         string
	Months           [12]uint32
}

// SchemaError：解码成功但无法绑定到记录结构的行；携带原行用于诊断输出
type SchemaError struct {
	Row []string
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %v", e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Schema：表头名称到列下标的映射
type Schema struct {
	header  []string
	index   map[string]int
	missing []string
}

func requiredColumns() []string {
	cols := []string{
		ColYear, ColStateCode, ColStateName, ColMunicipalityCode, ColMunicipalityName,
		ColLegalGood, ColType, ColSubtype, ColModality,
	}
	return append(cols, MonthColumns[:]...)
}

// NewSchema：以解码后的表头行建立索引
// 约束：重名列直接返回错误；缺失的必需列延迟到首条记录时报告，使诊断能带出该行
func NewSchema(header []string) (*Schema, error) {
	s := &Schema{header: append([]string(nil), header...), index: make(map[string]int, len(header))}
	for i, h := range header {
		if _, dup := s.index[h]; dup {
			return nil, &SchemaError{Row: s.header, Err: fmt.Errorf("%w: %q", ErrDuplicateColumn, h)}
		}
		s.index[h] = i
	}
	for _, c := range requiredColumns() {
		if _, ok := s.index[c]; !ok {
			s.missing = append(s.missing, c)
		}
	}
	return s, nil
}

// Missing：表头中缺失的必需列
func (s *Schema) Missing() []string { return s.missing }

func (s *Schema) field(row []string, col string) (string, error) {
	i, ok := s.index[col]
	if !ok || i >= len(row) {
		return "", fmt.Errorf("%w: %q", ErrMissingColumn, col)
	}
	return row[i], nil
}

// Parse：将一行绑定为 Record；月份列按只取正数规则解析，编码列补零
func (s *Schema) Parse(row []string) (Record, error) {
	var r Record
	fail := func(err error) (Record, error) {
		return Record{}, &SchemaError{Row: append([]string(nil), row...), Err: err}
	}
	if len(s.missing) > 0 {
		return fail(fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(quoteAll(s.missing), ", ")))
	}

	yearStr, err := s.field(row, ColYear)
	if err != nil {
		return fail(err)
	}
	y, err := strconv.ParseUint(strings.TrimPrefix(yearStr, "+"), 10, 32)
	if err != nil {
		return fail(fmt.Errorf("%w %q", ErrBadYear, yearStr))
	}
	r.Year = uint32(y)

	texts := []struct {
		col string
		dst *string
	}{
		{ColStateCode, &r.StateCode},
		{ColStateName, &r.StateName},
		{ColMunicipalityCode, &r.MunicipalityCode},
		{ColMunicipalityName, &r.MunicipalityName},
		{ColLegalGood, &r.LegalGood},
		{ColType, &r.Type},
		{ColSubtype, &r.Subtype},
		{ColModality, &r.Modality},
	}
	for _, t := range texts {
		v, err := s.field(row, t.col)
		if err != nil {
			return fail(err)
		}
		*t.dst = v
	}

	for m, col := range MonthColumns {
		v, err := s.field(row, col)
		if err != nil {
			return fail(err)
		}
		r.Months[m] = ParseCount(v)
	}

	r.StateCode = PadLeft(r.StateCode, StateCodeWidth)
	r.MunicipalityCode = PadLeft(r.MunicipalityCode, MunicipalityCodeWidth)
	return r, nil
}

// ParseCount：只取正数规则；空值、非数字、负数、溢出或 NA 一律视为 0
func ParseCount(s string) uint32 {
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// PadLeft：按字符数左侧补零到指定宽度，超宽时原样返回
func PadLeft(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return strings.Repeat("0", width-n) + s
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strconv.Quote(s)
	}
	return out
}
