package replacer

import (
	"encoding/json"
	"errors"

	"pdf-replacer/layout"
)

// ErrDocumentClosed 底层文档句柄已失效，属于致命错误
var ErrDocumentClosed = errors.New("文档已关闭")

// ErrUnsupportedGlyph 文本包含所选字体无法编码的字符
var ErrUnsupportedGlyph = errors.New("字体不支持的字符")

// EraseMode 擦除方式
type EraseMode int

const (
	// EraseNone 未擦除
	EraseNone EraseMode = iota
	// EraseContent 删除区域内的文字绘制操作，背景与图形保持不变
	EraseContent
	// EraseCover 用白色矩形覆盖，仅在无法删除文字对象时使用
	EraseCover
)

func (m EraseMode) String() string {
	switch m {
	case EraseContent:
		return "content"
	case EraseCover:
		return "cover"
	default:
		return "none"
	}
}

// MarshalJSON 以字符串输出
func (m EraseMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON 解析字符串形式
func (m *EraseMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "content":
		*m = EraseContent
	case "cover":
		*m = EraseCover
	default:
		*m = EraseNone
	}
	return nil
}

// PlacedLine 已定位的一行文本，坐标为左上原点
type PlacedLine struct {
	Text     string
	X        float64
	Baseline float64
}

// TextStyle 绘制样式
type TextStyle struct {
	Font  FontFace
	Size  float64
	Color layout.Color
}

// Page 可被事务修改的页面
//
// EraseText 返回实际使用的擦除方式；只有文档级故障才返回错误。
// DrawText 的错误只影响当前单元。
type Page interface {
	Number() int
	Bounds() layout.Rect
	EraseText(rect layout.Rect, forceCover bool) (EraseMode, error)
	DrawText(lines []PlacedLine, style TextStyle) error
}
