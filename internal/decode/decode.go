// 包 decode：将 Windows-1252 字段转为 UTF-8 文本
package decode

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Decoder：逐字段转码，字段之间不共享状态
// 约束：代码页未定义的 0x81、0x8D、0x8F、0x90、0x9D 映射为同值的 C1 控制字符（U+0081 等），
// 其余字节按 charmap 表转换，转码不会失败；非并发安全，每个流水线持有一个
type Decoder struct {
	dec *encoding.Decoder
}

func New() *Decoder {
	return &Decoder{dec: charmap.Windows1252.NewDecoder()}
}

// Field：转码单个原始字节字段
func (d *Decoder) Field(b []byte) string {
	if isASCII(b) {
		return string(b)
	}
	if hasUndefined(b) {
		return fallback(b)
	}
	out, err := d.dec.Bytes(b)
	if err != nil {
		// charmap 解码器不会返回错误；保底逐字节映射
		return fallback(b)
	}
	return string(out)
}

// Strings：转码以 Go 字符串承载的原始字节（encoding/csv 读出的字段即为此形态）
func (d *Decoder) Strings(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = d.Field([]byte(f))
	}
	return out
}

// Encode：将 UTF-8 文本编码回 Windows-1252，是 Field 的逆映射；包含代码页外字符时返回错误
func Encode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i, r := range s {
		if undefined(r) {
			out = append(out, byte(r))
			continue
		}
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			return nil, fmt.Errorf("encode windows-1252: %q at offset %d not in code page", r, i)
		}
		out = append(out, c)
	}
	return out, nil
}

// undefined：代码页未分配字符的字节（及其对应的 C1 控制字符）
func undefined(r rune) bool {
	switch r {
	case 0x81, 0x8D, 0x8F, 0x90, 0x9D:
		return true
	}
	return false
}

func hasUndefined(b []byte) bool {
	for _, c := range b {
		if undefined(rune(c)) {
			return true
		}
	}
	return false
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

func fallback(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		if undefined(rune(c)) {
			rs[i] = rune(c)
			continue
		}
		rs[i] = charmap.Windows1252.DecodeByte(c)
	}
	return string(rs)
}
