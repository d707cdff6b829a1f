package layout

import "math"

// 字号搜索范围与行高系数，为固定配置
const (
	MinFontSize      = 6.0
	MaxFontSize      = 72.0
	LineHeightFactor = 1.2
)

// FitResult 字号与换行求解结果
type FitResult struct {
	FontSize   float64  `json:"font_size"`
	Lines      []string `json:"lines"`
	Fits       bool     `json:"fits"`
	Degenerate bool     `json:"degenerate,omitempty"` // 目标区域宽或高不为正
	Overflow   float64  `json:"overflow,omitempty"`   // 超出区域的高度
	// OverflowWidth 超出区域的宽度，只有不换行的缩放模式会产生
	OverflowWidth float64 `json:"overflow_width,omitempty"`
}

// LineHeight 行高
func (r FitResult) LineHeight() float64 {
	return r.FontSize * LineHeightFactor
}

// TotalHeight 换行后文本块的总高度
func (r FitResult) TotalHeight() float64 {
	return float64(len(r.Lines)) * r.LineHeight()
}

// Baselines 每行基线的 y 坐标：首行位于 top+字号，之后每行下移一个行高
func (r FitResult) Baselines(top float64) []float64 {
	out := make([]float64, len(r.Lines))
	for i := range r.Lines {
		out[i] = top + r.FontSize + float64(i)*r.LineHeight()
	}
	return out
}

// blockHeight 行数乘行高
func blockHeight(lines []string, size float64) float64 {
	return float64(len(lines)) * size * LineHeightFactor
}

// Fit 在区域内搜索能放下文本的最大整数字号
//
// 从 floor(maxFontSize) 逐 1 递减到 ceil(MinFontSize)，第一个总高度不超过区域高度的字号即为结果。
// 全部失败时以 MinFontSize 换行并返回 Fits=false，由调用方记录降级。
//
// floor(maxFontSize) 低于 MinFontSize 时没有候选字号，直接以 MinFontSize 换行：
// 总高度不超过区域高度即返回 Fits=true，Fits 只表示文本块是否放得下。
func Fit(text string, rect Rect, maxFontSize float64) FitResult {
	w, h := rect.Width(), rect.Height()
	if w <= 0 || h <= 0 {
		return FitResult{
			FontSize:   MinFontSize,
			Lines:      []string{text},
			Fits:       false,
			Degenerate: true,
		}
	}

	hi := math.Floor(math.Min(maxFontSize, MaxFontSize))
	lo := math.Ceil(MinFontSize)
	for s := hi; s >= lo; s-- {
		lines := Wrap(text, w, s)
		if blockHeight(lines, s) <= h+widthEpsilon {
			return FitResult{FontSize: s, Lines: lines, Fits: true}
		}
	}

	lines := Wrap(text, w, MinFontSize)
	total := blockHeight(lines, MinFontSize)
	if hi < lo && total <= h+widthEpsilon {
		// 起始字号本身低于下限：没有候选，按下限如实判断
		return FitResult{FontSize: MinFontSize, Lines: lines, Fits: true}
	}
	return FitResult{
		FontSize: MinFontSize,
		Lines:    lines,
		Fits:     false,
		Overflow: math.Max(total-h, 0),
	}
}

// FitScaleOnly 只缩放不换行的快速模式
//
// 原字号下估算宽度超过区域宽度时按比例缩小，结果限制在 [MinFontSize, MaxFontSize]。
func FitScaleOnly(text string, rect Rect, originalSize float64) FitResult {
	w, h := rect.Width(), rect.Height()
	if w <= 0 || h <= 0 {
		return FitResult{
			FontSize:   MinFontSize,
			Lines:      []string{text},
			Fits:       false,
			Degenerate: true,
		}
	}

	size := ScaledFontSize(text, w, originalSize)
	lines := []string{text}
	res := FitResult{FontSize: size, Lines: lines}
	overflowW := EstimateWidth(text, size) - w
	overflowH := blockHeight(lines, size) - h
	res.Fits = overflowW <= widthEpsilon && overflowH <= widthEpsilon
	if !res.Fits {
		res.Overflow = math.Max(overflowH, 0)
		res.OverflowWidth = math.Max(overflowW, 0)
	}
	return res
}

// ScaledFontSize 按宽度比例缩放字号：adjusted = original * width / estimated
func ScaledFontSize(text string, maxWidth, originalSize float64) float64 {
	size := clampFontSize(originalSize)
	est := EstimateWidth(text, originalSize)
	if est > maxWidth && est > 0 {
		size = clampFontSize(originalSize * maxWidth / est)
	}
	return size
}

// AdjustForExpansion 根据译文膨胀率估算字号：size / sqrt(expansion)
func AdjustForExpansion(size, expansion float64) float64 {
	if expansion <= 1.0 {
		return size
	}
	return math.Max(size/math.Sqrt(expansion), MinFontSize)
}

func clampFontSize(size float64) float64 {
	return math.Max(MinFontSize, math.Min(size, MaxFontSize))
}
