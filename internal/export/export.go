// 包 export：两个产物的序列化（字典 CSV、嵌套 JSON）与读取，以及落盘的原子替换
package export

import (
	"bufio"
	"delitos/internal/aggregate"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// DictionaryHeader：字典 CSV 的表头
var DictionaryHeader = []string{
	"Tipo de delito", "Subtipo de delito", "Modalidad", "CVETPO", "CVESUB", "CVEMOD", "CVE",
}

var ErrBadHeader = errors.New("unexpected dictionary header")

// WriteDictionary：写出表头与每个分类一行，顺序与传入一致（调用方传入按编码排序的字典）
func WriteDictionary(w io.Writer, dict []aggregate.Category) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DictionaryHeader); err != nil {
		return err
	}
	for _, c := range dict {
		if err := cw.Write([]string{c.Type, c.Subtype, c.Modality, c.TypeCode, c.SubtypeCode, c.ModalityCode, c.Code}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadDictionary：读回字典 CSV
func ReadDictionary(r io.Reader) ([]aggregate.Category, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(DictionaryHeader)
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read dictionary header: %w", err)
	}
	for i, h := range DictionaryHeader {
		if head[i] != h {
			return nil, fmt.Errorf("%w: column %d is %q", ErrBadHeader, i+1, head[i])
		}
	}
	var out []aggregate.Category
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read dictionary: %w", err)
		}
		out = append(out, aggregate.Category{
			Type: row[0], Subtype: row[1], Modality: row[2],
			TypeCode: row[3], SubtypeCode: row[4], ModalityCode: row[5], Code: row[6],
		})
	}
}

// WriteIncidence：嵌套映射写为单个 JSON 文档；各层键升序，不做 HTML 转义（< > & 原样输出），末尾不加换行
func WriteIncidence(w io.Writer, inc aggregate.Incidence) error {
	if inc == nil {
		inc = aggregate.Incidence{}
	}
	b, err := json.MarshalWithOption(inc, json.DisableHTMLEscape())
	if err != nil {
		return fmt.Errorf("marshal incidence: %w", err)
	}
	_, err = w.Write(b)
	return err
}

// ReadIncidence：读回嵌套 JSON
func ReadIncidence(r io.Reader) (aggregate.Incidence, error) {
	var inc aggregate.Incidence
	if err := json.NewDecoder(r).Decode(&inc); err != nil {
		return nil, fmt.Errorf("decode incidence: %w", err)
	}
	if inc == nil {
		inc = aggregate.Incidence{}
	}
	return inc, nil
}

// WriteFileAtomic：在目标目录写临时文件，成功后 rename 覆盖；失败时目标文件保持原样
func WriteFileAtomic(dest string, fn func(io.Writer) error) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, 0o644)

	bw := bufio.NewWriterSize(tmp, 64*1024)
	if err := fn(bw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// LoadArtifacts：从输出目录读回两个产物
func LoadArtifacts(dictPath, incPath string) ([]aggregate.Category, aggregate.Incidence, error) {
	df, err := os.Open(dictPath)
	if err != nil {
		return nil, nil, err
	}
	defer df.Close()
	dict, err := ReadDictionary(df)
	if err != nil {
		return nil, nil, err
	}
	jf, err := os.Open(incPath)
	if err != nil {
		return nil, nil, err
	}
	defer jf.Close()
	inc, err := ReadIncidence(jf)
	if err != nil {
		return nil, nil, err
	}
	return dict, inc, nil
}
