package replacer

import (
	"fmt"

	"pdf-replacer/layout"
)

// FontFace 选定的字体
type FontFace struct {
	Name   string        `json:"name"`   // PDF 基础字体名
	Script layout.Script `json:"script"` // 决定编码方式
	Bold   bool          `json:"bold"`
	// SyntheticBold 字体本身没有粗体变体，绘制时描边加粗
	SyntheticBold bool `json:"synthetic_bold,omitempty"`
}

// FontConfig 字体配置，每次运行解析一次后显式传入事务
type FontConfig struct {
	Latin     string
	LatinBold string
	CJK       string
	CJKBold   string // 为空时使用 CJK 并描边加粗
}

// DefaultFontConfig 标准 14 字体与 Adobe 日文 CID 字体
func DefaultFontConfig() FontConfig {
	return FontConfig{
		Latin:     "Helvetica",
		LatinBold: "Helvetica-Bold",
		CJK:       "HeiseiKakuGo-W5",
	}
}

// Validate 检查必填字段
func (c FontConfig) Validate() error {
	if c.Latin == "" || c.CJK == "" {
		return fmt.Errorf("字体配置不完整: latin=%q cjk=%q", c.Latin, c.CJK)
	}
	return nil
}

// Select 按脚本和粗细选择字体
func (c FontConfig) Select(script layout.Script, bold bool) FontFace {
	if script == layout.ScriptCJK {
		switch {
		case bold && c.CJKBold != "":
			return FontFace{Name: c.CJKBold, Script: script, Bold: true}
		case bold:
			return FontFace{Name: c.CJK, Script: script, Bold: true, SyntheticBold: true}
		default:
			return FontFace{Name: c.CJK, Script: script}
		}
	}
	switch {
	case bold && c.LatinBold != "":
		return FontFace{Name: c.LatinBold, Script: script, Bold: true}
	case bold:
		return FontFace{Name: c.Latin, Script: script, Bold: true, SyntheticBold: true}
	default:
		return FontFace{Name: c.Latin, Script: script}
	}
}
