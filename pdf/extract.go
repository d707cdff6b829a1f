package pdf

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	dslipakpdf "github.com/dslipak/pdf"
	"github.com/ledongthuc/pdf"

	"pdf-replacer/layout"
	"pdf-replacer/logger"
)

// Glyph 文本提取库给出的单个字符，坐标为 PDF 用户空间，Y 为基线
type Glyph struct {
	Font string
	Size float64
	X    float64
	Y    float64
	W    float64
	S    string
}

// Extractor 提取带位置的文本片段
//
// 优先使用 ledongthuc/pdf，失败或 panic 时改用 dslipak/pdf。
type Extractor struct {
	log *logger.Logger
}

// NewExtractor 创建提取器
func NewExtractor(log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{log: log}
}

// Extract 提取前 maxPages 页（0 表示全部）的片段
func (e *Extractor) Extract(doc *Document, maxPages int) (*layout.Document, error) {
	count := doc.PageCount()
	if maxPages > 0 && maxPages < count {
		count = maxPages
	}

	glyphs, source, err := e.readGlyphs(doc.Path(), count)
	if err != nil {
		return nil, err
	}

	out := &layout.Document{Source: doc.Path()}
	total := 0
	for n := 1; n <= count; n++ {
		geo, err := doc.Geometry(n)
		if err != nil {
			return nil, err
		}
		frags := BuildFragments(glyphs[n], geo)
		total += len(frags)
		out.Pages = append(out.Pages, layout.PageLayout{
			Number:    n,
			Width:     geo.Width(),
			Height:    geo.Height(),
			Rotation:  geo.Rotation,
			Fragments: frags,
		})
	}

	e.log.Info("文本提取完成", logger.Fields{
		"文件":  doc.Path(),
		"页数":  count,
		"片段数": total,
		"解析库": source,
	})
	return out, nil
}

// readGlyphs 依次尝试两个解析库
func (e *Extractor) readGlyphs(path string, count int) (map[int][]Glyph, string, error) {
	glyphs, err1 := readWithLedongthuc(path, count)
	if err1 == nil {
		return glyphs, "ledongthuc/pdf", nil
	}
	e.log.Warn("ledongthuc/pdf 解析失败，尝试 dslipak/pdf", logger.Fields{"错误": err1.Error()})

	glyphs, err2 := readWithDslipak(path, count)
	if err2 == nil {
		return glyphs, "dslipak/pdf", nil
	}
	return nil, "", fmt.Errorf("所有解析方法都失败了: ledongthuc/pdf(%v), dslipak/pdf(%v)", err1, err2)
}

func readWithLedongthuc(path string, count int) (out map[int][]Glyph, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("解析时发生panic: %v", r)
		}
	}()
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开PDF文件失败: %w", err)
	}
	defer file.Close()

	out = make(map[int][]Glyph)
	n := reader.NumPage()
	if count < n {
		n = count
	}
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, t := range page.Content().Text {
			out[i] = append(out[i], Glyph{Font: t.Font, Size: t.FontSize, X: t.X, Y: t.Y, W: t.W, S: t.S})
		}
	}
	return out, nil
}

func readWithDslipak(path string, count int) (out map[int][]Glyph, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("解析时发生panic: %v", r)
		}
	}()
	reader, err := dslipakpdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dslipak/pdf打开失败: %w", err)
	}

	out = make(map[int][]Glyph)
	n := reader.NumPage()
	if count < n {
		n = count
	}
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, t := range page.Content().Text {
			out[i] = append(out[i], Glyph{Font: t.Font, Size: t.FontSize, X: t.X, Y: t.Y, W: t.W, S: t.S})
		}
	}
	return out, nil
}

// run 同一行上连续的字符
type run struct {
	text     strings.Builder
	font     string
	size     float64
	baseline float64
	rect     layout.Rect
	space    bool // 末尾已有空格
}

func (r *run) canMerge(g Glyph, x0, baseline float64) bool {
	if g.Font != r.font {
		return false
	}
	if math.Abs(g.Size-r.size) > 1.0 {
		return false
	}
	if math.Abs(baseline-r.baseline) > r.size*0.5 {
		return false
	}
	gap := x0 - r.rect.X1
	return gap >= -r.size*0.5 && gap <= r.size
}

// BuildFragments 把字符合并为片段，并按阅读顺序编号
//
// 坐标转换为左上原点；片段矩形从基线向上一个字号、向下四分之一字号。
// 合并条件：字体相同、字号相差不超过 1、基线相差不超过半个字号、水平间距在 [-0.5, 1] 个字号内。
func BuildFragments(glyphs []Glyph, geo Geometry) []layout.Fragment {
	var runs []*run
	var cur *run
	lastX, lastEnd := math.NaN(), 0.0
	for _, g := range glyphs {
		if g.S == "" || g.Size <= 0 {
			continue
		}
		x0, baseline := geo.ToTopLeft(g.X, g.Y)
		rawX := x0
		w := g.W
		if w <= 0 {
			// 字体缺少宽度表时解析库不推进位置，按估算宽度依次排布
			w = layout.EstimateWidth(g.S, g.Size)
			if cur != nil && math.Abs(rawX-lastX) < 0.01 && math.Abs(baseline-cur.baseline) < 0.01 {
				x0 = lastEnd
			}
		}
		lastX, lastEnd = rawX, x0+w
		blank := isBlank(g.S)
		rect := layout.Rect{X0: x0, Y0: baseline - g.Size, X1: x0 + w, Y1: baseline + 0.25*g.Size}

		if cur != nil && cur.canMerge(g, x0, baseline) {
			if blank {
				if !cur.space {
					cur.text.WriteString(" ")
					cur.space = true
				}
				cur.rect.X1 = math.Max(cur.rect.X1, rect.X1)
				continue
			}
			if x0-cur.rect.X1 > 0.15*g.Size && !cur.space && !startsWide(g.S) {
				cur.text.WriteString(" ")
			}
			cur.text.WriteString(g.S)
			cur.space = false
			cur.rect = cur.rect.Union(rect)
			continue
		}
		if blank {
			continue
		}
		cur = &run{font: g.Font, size: g.Size, baseline: baseline, rect: rect}
		cur.text.WriteString(g.S)
		runs = append(runs, cur)
	}

	sortReadingOrder(runs)

	out := make([]layout.Fragment, 0, len(runs))
	for _, r := range runs {
		text := strings.Join(strings.Fields(r.text.String()), " ")
		if text == "" {
			continue
		}
		style := layout.StyleFromFontName(r.font, r.size, layout.Color{})
		out = append(out, layout.Fragment{Index: len(out), Text: text, Rect: r.rect, Font: style})
	}
	return out
}

func startsWide(s string) bool {
	for _, r := range s {
		return layout.IsWide(r)
	}
	return false
}

// sortReadingOrder 先按行（基线相近视为同一行）再按横坐标排序
func sortReadingOrder(runs []*run) {
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].baseline < runs[j].baseline
	})
	var lines [][]*run
	for _, r := range runs {
		n := len(lines)
		if n > 0 {
			head := lines[n-1][0]
			if r.baseline-head.baseline <= 0.5*math.Min(head.size, r.size) {
				lines[n-1] = append(lines[n-1], r)
				continue
			}
		}
		lines = append(lines, []*run{r})
	}
	i := 0
	for _, line := range lines {
		sort.SliceStable(line, func(a, b int) bool {
			return line[a].rect.X0 < line[b].rect.X0
		})
		for _, r := range line {
			runs[i] = r
			i++
		}
	}
}

// isBlank 是否只含空白
func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
