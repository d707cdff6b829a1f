package preview

import (
	"fmt"
	"image"
	"io"
	"math"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"pdf-replacer/layout"
	"pdf-replacer/replacer"
)

// Options 预览选项
type Options struct {
	Scale   float64 // 每 pt 的像素数，默认 1.5
	FitMode replacer.FitMode
	Font    *truetype.Font // 为空时使用内置点阵字体，无法显示 CJK
}

// LoadFont 读取 TrueType 字体
func LoadFont(path string) (*truetype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取字体文件失败: %w", err)
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("解析字体失败: %w", err)
	}
	return f, nil
}

// Palette 按黄金角分布色相的区分色
func Palette(n int) []colorful.Color {
	out := make([]colorful.Color, n)
	for i := range out {
		out[i] = colorful.Hsv(math.Mod(float64(i)*137.508, 360), 0.65, 0.9)
	}
	return out
}

func (o Options) faceFor(size float64) font.Face {
	if o.Font == nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(o.Font, &truetype.Options{Size: size * o.Scale})
}

// Render 绘制一页的片段、单元放置区域和求解后的译文行
//
// 片段为灰色细框，单元按调色板着色，发生溢出或绘制失败的单元用红色粗框标出。
func Render(page layout.PageLayout, events []replacer.DegradationEvent, opts Options) image.Image {
	if opts.Scale <= 0 {
		opts.Scale = 1.5
	}
	w := int(math.Ceil(page.Width * opts.Scale))
	h := int(math.Ceil(page.Height * opts.Scale))
	dc := gg.NewContext(max(w, 1), max(h, 1))
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	degraded := make(map[string]bool)
	for _, e := range events {
		if e.Page == page.Number && (e.Kind == replacer.EventOverflow || e.Kind == replacer.EventPaintFailure) {
			degraded[e.UnitID] = true
		}
	}

	s := opts.Scale
	rectPath := func(r layout.Rect) {
		dc.DrawRectangle(r.X0*s, r.Y0*s, r.Width()*s, r.Height()*s)
	}

	dc.SetLineWidth(1)
	dc.SetRGBA(0.6, 0.6, 0.6, 1)
	for _, f := range page.Fragments {
		rectPath(f.Rect)
		dc.Stroke()
	}

	bounds := page.Bounds()
	palette := Palette(len(page.Units))
	for i, u := range page.Units {
		rect := u.PlacementRect.Intersect(bounds)
		c := palette[i]

		rectPath(rect)
		dc.SetRGBA(c.R, c.G, c.B, 0.15)
		dc.Fill()

		rectPath(rect)
		if degraded[u.ID()] {
			dc.SetRGB(0.9, 0.1, 0.1)
			dc.SetLineWidth(2.5)
		} else {
			dc.SetRGB(c.R, c.G, c.B)
			dc.SetLineWidth(1)
		}
		dc.Stroke()

		if len(u.Members) == 0 || !u.NeedsReplacement() {
			continue
		}
		fit := replacer.Solve(u, rect, opts.FitMode)
		dc.SetFontFace(opts.faceFor(fit.FontSize))
		r, g, b := u.FirstMember().Font.Color.Floats()
		dc.SetRGB(r, g, b)
		for _, line := range replacer.PlaceLines(fit, rect) {
			dc.DrawString(line.Text, line.X*s, line.Baseline*s)
		}
	}
	return dc.Image()
}

// WritePNG 以 PNG 写出预览图
func WritePNG(w io.Writer, page layout.PageLayout, events []replacer.DegradationEvent, opts Options) error {
	dc := gg.NewContextForImage(Render(page, events, opts))
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("写出预览图失败: %w", err)
	}
	return nil
}
