package pdf

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdf-replacer/layout"
	"pdf-replacer/replacer"
)

// probeTolerance 擦除区域向外扩展的距离
const probeTolerance = 1.0

// Page 一个可修改的页面，实现 replacer.Page
//
// 擦除只标记原内容流中的文字绘制操作，新绘制的内容单独累积，
// 因此后处理的单元不会擦掉先前单元写入的译文。
type Page struct {
	doc *Document
	geo Geometry

	ops         []Operation
	removed     []bool
	shows       []TextShow
	parsed      bool
	parseErr    error
	contentRefs types.Array
	inherited   types.Dict

	painted bytes.Buffer
	covers  int
	fonts   map[string]replacer.FontFace
}

var _ replacer.Page = (*Page)(nil)

// Number 页码，从 1 开始
func (p *Page) Number() int {
	return p.geo.Number
}

// Bounds 左上原点的页面矩形
func (p *Page) Bounds() layout.Rect {
	return p.geo.Bounds()
}

// Geometry 页面几何信息
func (p *Page) Geometry() Geometry {
	return p.geo
}

// Parsed 内容流是否成功解析
func (p *Page) Parsed() bool {
	return p.parsed
}

// ParseError 内容流解析错误
func (p *Page) ParseError() error {
	return p.parseErr
}

// Dirty 是否有待写回的修改
func (p *Page) Dirty() bool {
	return p.painted.Len() > 0 || p.removedCount() > 0
}

func (p *Page) removedCount() int {
	n := 0
	for _, r := range p.removed {
		if r {
			n++
		}
	}
	return n
}

// EraseText 删除探测点落在区域内的文字绘制操作；找不到可删除的操作时用白色矩形覆盖
func (p *Page) EraseText(rect layout.Rect, forceCover bool) (replacer.EraseMode, error) {
	if p.doc.closed.Load() {
		return replacer.EraseNone, replacer.ErrDocumentClosed
	}
	if forceCover || !p.parsed {
		p.cover(rect)
		return replacer.EraseCover, nil
	}

	hit := rect.Expand(probeTolerance)
	n := 0
	for _, s := range p.shows {
		if p.removed[s.Op] {
			continue
		}
		x, y := p.geo.ToTopLeft(s.ProbeX, s.ProbeY)
		if hit.Contains(x, y) {
			p.removed[s.Op] = true
			n++
		}
	}
	if n == 0 {
		p.cover(rect)
		return replacer.EraseCover, nil
	}
	return replacer.EraseContent, nil
}

// cover 白色矩形覆盖
func (p *Page) cover(rect layout.Rect) {
	if rect.IsDegenerate() {
		return
	}
	x, y := p.geo.ToUser(rect.X0, rect.Y1)
	fmt.Fprintf(&p.painted, "q\n1 1 1 rg\n%s %s %s %s re\nf\nQ\n",
		formatNumber(x), formatNumber(y), formatNumber(rect.Width()), formatNumber(rect.Height()))
	p.covers++
}

// DrawText 左对齐绘制已定位的行
//
// 全部行先完成编码再写入，失败时不留下任何绘制内容。
func (p *Page) DrawText(lines []replacer.PlacedLine, style replacer.TextStyle) error {
	if p.doc.closed.Load() {
		return replacer.ErrDocumentClosed
	}
	if len(lines) == 0 {
		return nil
	}
	if style.Size <= 0 || math.IsNaN(style.Size) {
		return fmt.Errorf("无效字号: %v", style.Size)
	}

	encoded := make([]string, len(lines))
	for i, line := range lines {
		if style.Font.Script == layout.ScriptCJK && p.doc.glyphs != nil {
			if err := p.doc.glyphs.Check(line.Text); err != nil {
				return err
			}
		}
		b, err := encodeText(style.Font, line.Text)
		if err != nil {
			return err
		}
		encoded[i] = hexString(b)
	}

	res := p.doc.fontResource(style.Font)
	p.fonts[res] = style.Font

	r, g, b := style.Color.Floats()
	color := strings.Join([]string{formatNumber(r), formatNumber(g), formatNumber(b)}, " ")

	var buf bytes.Buffer
	buf.WriteString("q\n")
	buf.WriteString(color + " rg\n")
	if style.Font.SyntheticBold {
		buf.WriteString(color + " RG\n")
		buf.WriteString(formatNumber(style.Size/30) + " w\n")
		buf.WriteString("2 Tr\n")
	}
	buf.WriteString("BT\n")
	fmt.Fprintf(&buf, "/%s %s Tf\n", res, formatNumber(style.Size))
	for i, line := range lines {
		x, y := p.geo.ToUser(line.X, line.Baseline)
		fmt.Fprintf(&buf, "1 0 0 1 %s %s Tm\n%s Tj\n", formatNumber(x), formatNumber(y), encoded[i])
	}
	buf.WriteString("ET\nQ\n")
	p.painted.Write(buf.Bytes())
	return nil
}

// keptContent 序列化未被删除的操作
//
// 删除 ' 与 " 时保留它们隐含的换行和间距设置；被删除的绘制操作换成
// 不含字形的 TJ，文本矩阵照常推进，同一 BT 内后续文字的位置不受影响。
func (p *Page) keptContent() []byte {
	shifts := make(map[int]float64, len(p.shows))
	for _, s := range p.shows {
		shifts[s.Op] = s.Shift
	}
	var buf bytes.Buffer
	for i, op := range p.ops {
		if !p.removed[i] {
			writeOp(&buf, op)
			continue
		}
		switch op.Operator {
		case "'":
			buf.WriteString("T*\n")
		case "\"":
			if len(op.Operands) == 3 {
				fmt.Fprintf(&buf, "%s Tw %s Tc T*\n", op.Operands[0].Raw, op.Operands[1].Raw)
			}
		}
		if shift := shifts[i]; shift != 0 {
			fmt.Fprintf(&buf, "[%s] TJ\n", formatNumber(shift))
		}
	}
	return buf.Bytes()
}

// TextShows 页面上的文字绘制操作，坐标为 PDF 用户空间
func (p *Page) TextShows() []TextShow {
	out := make([]TextShow, len(p.shows))
	copy(out, p.shows)
	return out
}

// ApplyColors 用内容流中的填充色补全片段颜色
//
// 取片段区域内离左下角最近的文字绘制操作的颜色。
func (p *Page) ApplyColors(fragments []layout.Fragment) []layout.Fragment {
	if !p.parsed || len(p.shows) == 0 {
		return fragments
	}
	out := make([]layout.Fragment, len(fragments))
	for i, f := range fragments {
		out[i] = f
		area := f.Rect.Expand(f.Font.Size * 0.5)
		best := -1.0
		for _, s := range p.shows {
			x, y := p.geo.ToTopLeft(s.OriginX, s.OriginY)
			if !area.Contains(x, y) {
				continue
			}
			d := math.Hypot(x-f.Rect.X0, y-f.Rect.Y1)
			if best < 0 || d < best {
				best = d
				out[i].Font.Color = s.Color
			}
		}
	}
	return out
}
