// 包 aggregate：构建分类字典与稀疏发生数映射（分类 → 年月 → 市镇 → 次数）
package aggregate

import (
	"delitos/internal/coder"
	"delitos/internal/record"
	"fmt"
	"sort"
)

// Category：字典中的一条分类
type Category struct {
	Type         string `json:"tipo"`
	Subtype      string `json:"subtipo"`
	Modality     string `json:"modalidad"`
	TypeCode     string `json:"cvetpo"`
	SubtypeCode  string `json:"cvesub"`
	ModalityCode string `json:"cvemod"`
	Code         string `json:"cve"`
}

// Incidence：分类编码 → 年月（YYYY-MM） → 五位市镇编码 → 次数（恒大于 0）
type Incidence map[string]map[string]map[string]uint32

// Triples：映射中（分类, 年月, 市镇）三元组的个数
func (in Incidence) Triples() int {
	n := 0
	for _, months := range in {
		for _, muns := range months {
			n += len(muns)
		}
	}
	return n
}

// Stats：一次运行的累计统计
type Stats struct {
	Records    int
	Categories int
	Triples    int
	Overwrites int
	Codes      map[coder.Kind]int
}

// Aggregator：单次遍历中同时维护编码表、字典与发生数映射
type Aggregator struct {
	coder      *coder.Coder
	dict       map[string]Category
	inc        Incidence
	records    int
	triples    int
	overwrites int
}

func New() *Aggregator {
	return &Aggregator{
		coder: coder.New(),
		dict:  map[string]Category{},
		inc:   Incidence{},
	}
}

// MonthKey：年份与月份（1..12）格式化为 YYYY-MM，月份补足两位
func MonthKey(year uint32, month int) string {
	return fmt.Sprintf("%d-%02d", year, month)
}

// Add：处理一条记录并返回其复合分类编码
// 约束：字典项只在分类首次出现时写入；同一（分类, 年月, 市镇）重复写入以后者为准，不累加
func (a *Aggregator) Add(r record.Record) string {
	tc := a.coder.Encode(coder.Type, r.Type)
	sc := a.coder.Encode(coder.Subtype, r.Subtype)
	mc := a.coder.Encode(coder.Modality, r.Modality)
	cve := coder.Composite(tc, sc, mc)
	a.records++

	if _, ok := a.dict[cve]; !ok {
		a.dict[cve] = Category{
			Type:         r.Type,
			Subtype:      r.Subtype,
			Modality:     r.Modality,
			TypeCode:     tc,
			SubtypeCode:  sc,
			ModalityCode: mc,
			Code:         cve,
		}
	}

	for i, v := range r.Months {
		if v == 0 {
			continue
		}
		months, ok := a.inc[cve]
		if !ok {
			months = map[string]map[string]uint32{}
			a.inc[cve] = months
		}
		ym := MonthKey(r.Year, i+1)
		muns, ok := months[ym]
		if !ok {
			muns = map[string]uint32{}
			months[ym] = muns
		}
		if _, exists := muns[r.MunicipalityCode]; exists {
			a.overwrites++
		} else {
			a.triples++
		}
		muns[r.MunicipalityCode] = v
	}
	return cve
}

// Dictionary：字典项，按复合编码升序
func (a *Aggregator) Dictionary() []Category {
	out := make([]Category, 0, len(a.dict))
	for _, c := range a.dict {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Incidence：发生数映射本身（非副本），序列化时由编码器排序键
func (a *Aggregator) Incidence() Incidence { return a.inc }

// Coder：底层编码表
func (a *Aggregator) Coder() *coder.Coder { return a.coder }

// Stats：当前累计统计
func (a *Aggregator) Stats() Stats {
	s := Stats{
		Records:    a.records,
		Categories: len(a.dict),
		Triples:    a.triples,
		Overwrites: a.overwrites,
		Codes:      map[coder.Kind]int{},
	}
	for _, k := range coder.Kinds() {
		s.Codes[k] = a.coder.Len(k)
	}
	return s
}

// Snapshot：导出阶段使用的只读视图
type Snapshot struct {
	Dictionary []Category
	Incidence  Incidence
	Codes      map[coder.Kind][]coder.Entry
}

// Snapshot：生成字典（已排序）、发生数映射与三张编码表的视图
func (a *Aggregator) Snapshot() *Snapshot {
	s := &Snapshot{
		Dictionary: a.Dictionary(),
		Incidence:  a.inc,
		Codes:      map[coder.Kind][]coder.Entry{},
	}
	for _, k := range coder.Kinds() {
		s.Codes[k] = a.coder.Table(k)
	}
	return s
}

// SortedKeys：返回映射的键并升序排列
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewSnapshot：由已落盘的字典与映射重建视图；编码表从字典的组件编码反推，按序号排序
func NewSnapshot(dict []Category, inc Incidence) *Snapshot {
	d := append([]Category(nil), dict...)
	sort.Slice(d, func(i, j int) bool { return d[i].Code < d[j].Code })
	s := &Snapshot{Dictionary: d, Incidence: inc, Codes: map[coder.Kind][]coder.Entry{}}
	seen := map[coder.Kind]map[string]bool{}
	for _, k := range coder.Kinds() {
		seen[k] = map[string]bool{}
	}
	add := func(k coder.Kind, label, code string) {
		if seen[k][label] {
			return
		}
		seen[k][label] = true
		s.Codes[k] = append(s.Codes[k], coder.Entry{Label: label, Code: code, Ordinal: ordinal(code)})
	}
	for _, c := range d {
		add(coder.Type, c.Type, c.TypeCode)
		add(coder.Subtype, c.Subtype, c.SubtypeCode)
		add(coder.Modality, c.Modality, c.ModalityCode)
	}
	for _, k := range coder.Kinds() {
		es := s.Codes[k]
		sort.SliceStable(es, func(i, j int) bool { return es[i].Ordinal < es[j].Ordinal })
	}
	return s
}

func ordinal(code string) int {
	n := 0
	for _, r := range code {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
		}
	}
	return n
}
