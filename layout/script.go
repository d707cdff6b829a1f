package layout

import "unicode"

// Script 译文所需的字体类别
type Script int

const (
	ScriptLatin Script = iota
	ScriptCJK
)

// CJKRatioThreshold 宽字符比例达到该值即使用 CJK 字体
const CJKRatioThreshold = 0.3

func (s Script) String() string {
	if s == ScriptCJK {
		return "cjk"
	}
	return "latin"
}

// DetectScript 按宽字符比例判断脚本
func DetectScript(text string) Script {
	if WideRatio(text) >= CJKRatioThreshold {
		return ScriptCJK
	}
	return ScriptLatin
}

// isJapanese 平假名、片假名、CJK 统一汉字
func isJapanese(r rune) bool {
	return (r >= 0x3040 && r <= 0x309F) ||
		(r >= 0x30A0 && r <= 0x30FF) ||
		(r >= 0x4E00 && r <= 0x9FFF)
}

// DetectLanguage 检测文本语言，返回 "ja" 或 "en"
func DetectLanguage(text string) string {
	total, ja := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isJapanese(r) {
			ja++
		}
	}
	if total > 0 && float64(ja)/float64(total) >= CJKRatioThreshold {
		return "ja"
	}
	return "en"
}
