package layout

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// 字宽系数。这是按字符类别加权的估算值，不是真实字形度量
const (
	WideFactor   = 1.0
	NarrowFactor = 0.55
)

// widthEpsilon 吸收浮点累加误差
const widthEpsilon = 1e-9

// IsWide 是否为宽字符（汉字、假名、全角形式等）
func IsWide(r rune) bool {
	switch {
	case r >= 0x3040 && r <= 0x30FF, // 平假名、片假名
		r >= 0x31F0 && r <= 0x31FF,
		r >= 0x3400 && r <= 0x4DBF,
		r >= 0x4E00 && r <= 0x9FFF,
		r >= 0xF900 && r <= 0xFAFF,
		r >= 0xFF01 && r <= 0xFF60,
		r >= 0xFFE0 && r <= 0xFFE6:
		return true
	}
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return true
	}
	return false
}

// CharWidth 单个字符的估算宽度
func CharWidth(r rune, fontSize float64) float64 {
	if IsWide(r) {
		return fontSize * WideFactor
	}
	return fontSize * NarrowFactor
}

// EstimateWidth 估算文本宽度，O(n)，不读取字体文件
func EstimateWidth(text string, fontSize float64) float64 {
	total := 0.0
	for _, r := range text {
		total += CharWidth(r, fontSize)
	}
	return total
}

// WideRatio 非空白字符中宽字符的比例
func WideRatio(text string) float64 {
	total, wide := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if IsWide(r) {
			wide++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(wide) / float64(total)
}

// token 换行单位。宽字符各自成为一个 token，其余按空白切分
type token struct {
	text  string
	space bool // 与前一个 token 之间是否有空白
}

func tokenize(paragraph string) []token {
	var tokens []token
	var cur strings.Builder
	pendingSpace := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, token{text: cur.String(), space: pendingSpace})
			cur.Reset()
			pendingSpace = false
		}
	}
	for _, r := range paragraph {
		switch {
		case unicode.IsSpace(r):
			flush()
			if len(tokens) > 0 {
				pendingSpace = true
			}
		case IsWide(r):
			flush()
			tokens = append(tokens, token{text: string(r), space: pendingSpace})
			pendingSpace = false
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// Wrap 贪心换行
//
// 优先在空白处断行；单个 token 超过行宽时按字符硬断，每行至少放一个字符。
// 显式换行符保留为段落边界。
func Wrap(text string, maxWidth, fontSize float64) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		lines = append(lines, wrapParagraph(paragraph, maxWidth, fontSize)...)
	}
	return lines
}

func wrapParagraph(paragraph string, maxWidth, fontSize float64) []string {
	tokens := tokenize(paragraph)
	if len(tokens) == 0 {
		return []string{""}
	}

	var lines []string
	line := ""
	lineWidth := 0.0
	fits := func(w float64) bool { return w <= maxWidth+widthEpsilon }

	for _, tk := range tokens {
		sep := ""
		if tk.space && line != "" {
			sep = " "
		}
		tkWidth := EstimateWidth(tk.text, fontSize)
		candidate := lineWidth + EstimateWidth(sep, fontSize) + tkWidth
		if fits(candidate) {
			line += sep + tk.text
			lineWidth = candidate
			continue
		}
		if line != "" {
			lines = append(lines, line)
			line, lineWidth = "", 0
		}
		if fits(tkWidth) {
			line, lineWidth = tk.text, tkWidth
			continue
		}
		// 硬断
		for _, r := range tk.text {
			cw := CharWidth(r, fontSize)
			if line != "" && !fits(lineWidth+cw) {
				lines = append(lines, line)
				line, lineWidth = "", 0
			}
			line += string(r)
			lineWidth += cw
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
