package layout

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Color RGB 颜色，分量 0-255
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Black 默认文字颜色
var Black = Color{}

// ColorFromFloats 从 0-1 浮点分量创建颜色
func ColorFromFloats(r, g, b float64) Color {
	c := colorful.Color{R: r, G: g, B: b}.Clamped()
	r8, g8, b8 := c.RGB255()
	return Color{R: r8, G: g8, B: b8}
}

// ParseColor 解析 #rrggbb
func ParseColor(hex string) (Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return Color{}, fmt.Errorf("颜色格式错误 %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return Color{R: r, G: g, B: b}, nil
}

// Floats 返回 0-1 浮点分量
func (c Color) Floats() (float64, float64, float64) {
	return float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255
}

// Hex 返回 #rrggbb
func (c Color) Hex() string {
	r, g, b := c.Floats()
	return colorful.Color{R: r, G: g, B: b}.Hex()
}

// FontStyle 片段字体信息
type FontStyle struct {
	Name   string  `json:"name"`
	Size   float64 `json:"size"`
	Bold   bool    `json:"bold"`
	Italic bool    `json:"italic"`
	Color  Color   `json:"color"`
}

// StyleFromFontName 根据字体名推断粗体和斜体
func StyleFromFontName(name string, size float64, color Color) FontStyle {
	lower := strings.ToLower(name)
	bold := false
	for _, key := range []string{"bold", "black", "heavy", "semibold", "demi", ",bd", "-bd"} {
		if strings.Contains(lower, key) {
			bold = true
			break
		}
	}
	italic := strings.Contains(lower, "italic") || strings.Contains(lower, "oblique")
	return FontStyle{Name: name, Size: size, Bold: bold, Italic: italic, Color: color}
}

var (
	errEmptyText    = errors.New("片段文本为空")
	errBadFontSize  = errors.New("字号必须大于0")
	errNegativeIdx  = errors.New("片段序号不能为负")
	errInvertedRect = errors.New("矩形坐标顺序错误")
)

// Fragment 原文中不可再分的文本片段
type Fragment struct {
	Index int       `json:"index"`
	Text  string    `json:"text"`
	Rect  Rect      `json:"rect"`
	Font  FontStyle `json:"font"`
}

// NewFragment 创建并校验片段
func NewFragment(index int, text string, rect Rect, font FontStyle) (Fragment, error) {
	f := Fragment{Index: index, Text: text, Rect: rect, Font: font}
	if err := f.Validate(); err != nil {
		return Fragment{}, err
	}
	return f, nil
}

// Validate 校验片段字段
func (f Fragment) Validate() error {
	switch {
	case f.Text == "":
		return fmt.Errorf("片段 %d: %w", f.Index, errEmptyText)
	case f.Font.Size <= 0:
		return fmt.Errorf("片段 %d: %w", f.Index, errBadFontSize)
	case f.Index < 0:
		return fmt.Errorf("片段 %d: %w", f.Index, errNegativeIdx)
	case f.Rect.X1 < f.Rect.X0 || f.Rect.Y1 < f.Rect.Y0:
		return fmt.Errorf("片段 %d: %w", f.Index, errInvertedRect)
	}
	return nil
}

// Unit 翻译单元：一个或多个连续片段
type Unit struct {
	StartIndex    int        `json:"start_index"`
	EndIndex      int        `json:"end_index"`
	OriginalText  string     `json:"original_text"`
	PlacementRect Rect       `json:"placement_rect"`
	Members       []Fragment `json:"members"`
	Replacement   string     `json:"replacement_text,omitempty"`
	Translated    bool       `json:"translated"`
}

// newUnit 由成员片段构建单元，members 非空且按序号排列
func newUnit(members []Fragment) Unit {
	var text strings.Builder
	rects := make([]Rect, len(members))
	for i, m := range members {
		text.WriteString(m.Text)
		rects[i] = m.Rect
	}
	rect, _ := UnionAll(rects)
	own := make([]Fragment, len(members))
	copy(own, members)
	return Unit{
		StartIndex:    members[0].Index,
		EndIndex:      members[len(members)-1].Index,
		OriginalText:  text.String(),
		PlacementRect: rect,
		Members:       own,
	}
}

// ID 单元标识
func (u Unit) ID() string {
	if u.StartIndex == u.EndIndex {
		return fmt.Sprintf("%d", u.StartIndex)
	}
	return fmt.Sprintf("%d-%d", u.StartIndex, u.EndIndex)
}

// WithReplacement 返回附带译文的新单元
func (u Unit) WithReplacement(text string) Unit {
	u.Replacement = text
	u.Translated = true
	return u
}

// NeedsReplacement 是否有需要写入的译文
func (u Unit) NeedsReplacement() bool {
	return u.Translated && u.Replacement != "" && u.Replacement != u.OriginalText
}

// FirstMember 第一个成员片段
func (u Unit) FirstMember() Fragment {
	return u.Members[0]
}

// DominantMember 字符最多的成员，数量相同时取靠前者
func (u Unit) DominantMember() Fragment {
	best := u.Members[0]
	bestCount := utf8.RuneCountInString(best.Text)
	for _, m := range u.Members[1:] {
		if n := utf8.RuneCountInString(m.Text); n > bestCount {
			best, bestCount = m, n
		}
	}
	return best
}

// ExpansionRatio 译文与原文字符数之比，无译文时为 1
func (u Unit) ExpansionRatio() float64 {
	orig := utf8.RuneCountInString(u.OriginalText)
	if !u.Translated || u.Replacement == "" || orig == 0 {
		return 1.0
	}
	return float64(utf8.RuneCountInString(u.Replacement)) / float64(orig)
}
