// 包 coder：维护类型、子类型、方式三张编码表，并拼接复合分类编码
package coder

import "fmt"

// Kind：分类体系
type Kind int

const (
	Type Kind = iota
	Subtype
	Modality
)

var kinds = [...]struct {
	prefix string
	name   string
}{
	Type:     {"T", "tipo"},
	Subtype:  {"S", "subtipo"},
	Modality: {"M", "modalidad"},
}

// Kinds：全部分类体系，按编码拼接顺序
func Kinds() []Kind { return []Kind{Type, Subtype, Modality} }

// Prefix：编码前缀 T/S/M
func (k Kind) Prefix() string { return kinds[k].prefix }

func (k Kind) String() string { return kinds[k].name }

// Entry：编码表中的一项
type Entry struct {
	Label   string
	Code    string
	Ordinal int
}

// table：标签到编码的映射，同时保留插入顺序
type table struct {
	prefix string
	codes  map[string]string
	order  []Entry
}

func (t *table) encode(label string) string {
	if c, ok := t.codes[label]; ok {
		return c
	}
	n := len(t.order) + 1
	c := Format(t.prefix, n)
	t.codes[label] = c
	t.order = append(t.order, Entry{Label: label, Code: c, Ordinal: n})
	return c
}

// Coder：三张编码表；序号按首次出现顺序分配，单次运行内稳定
// 约束：标签原样比较，不做去空白、大小写或重音归一
type Coder struct {
	tables [3]*table
}

func New() *Coder {
	c := &Coder{}
	for _, k := range Kinds() {
		c.tables[k] = &table{prefix: k.Prefix(), codes: map[string]string{}}
	}
	return c
}

// Encode：返回标签的编码，首次出现时分配下一个序号
func (c *Coder) Encode(k Kind, label string) string {
	return c.tables[k].encode(label)
}

// Table：按插入顺序返回编码表副本
func (c *Coder) Table(k Kind) []Entry {
	return append([]Entry(nil), c.tables[k].order...)
}

// Len：编码表大小
func (c *Coder) Len(k Kind) int { return len(c.tables[k].order) }

// Format：前缀加序号，序号至少两位补零，超过 99 自然变宽（T100），不截断
func Format(prefix string, ordinal int) string {
	return fmt.Sprintf("%s%02d", prefix, ordinal)
}

// Composite：三段编码直接拼接，无分隔符
func Composite(typeCode, subtypeCode, modalityCode string) string {
	return typeCode + subtypeCode + modalityCode
}
