package pdf

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/golang/freetype/truetype"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"

	"pdf-replacer/layout"
	"pdf-replacer/replacer"
)

// ErrUnsupportedGlyph 文本包含所选字体无法编码的字符
var ErrUnsupportedGlyph = replacer.ErrUnsupportedGlyph

// fontMetric 从页面资源读取的字宽，单位为 1/1000 em
type fontMetric struct {
	composite    bool
	firstChar    int
	widths       []float64
	missingWidth float64
	cidWidths    map[int]float64
}

const defaultSimpleWidth = 556

func (m *fontMetric) advance(code int) float64 {
	if m == nil {
		return defaultSimpleWidth
	}
	if m.composite {
		if w, ok := m.cidWidths[code]; ok {
			return w
		}
		return m.missingWidth
	}
	i := code - m.firstChar
	if i >= 0 && i < len(m.widths) {
		return m.widths[i]
	}
	return m.missingWidth
}

// loadFontMetrics 读取资源字典中每个字体的宽度表
func loadFontMetrics(ctx *model.Context, resources types.Dict) map[string]*fontMetric {
	out := make(map[string]*fontMetric)
	if resources == nil {
		return out
	}
	obj, found := resources.Find("Font")
	if !found {
		return out
	}
	fonts, err := ctx.DereferenceDict(obj)
	if err != nil || fonts == nil {
		return out
	}
	for name, ref := range fonts {
		fd, err := ctx.DereferenceDict(ref)
		if err != nil || fd == nil {
			continue
		}
		out[name] = readFontMetric(ctx, fd)
	}
	return out
}

func readFontMetric(ctx *model.Context, fd types.Dict) *fontMetric {
	if st := fd.NameEntry("Subtype"); st != nil && *st == "Type0" {
		m := &fontMetric{composite: true, missingWidth: 1000, cidWidths: map[int]float64{}}
		arr := derefArray(ctx, fd, "DescendantFonts")
		if len(arr) == 0 {
			return m
		}
		desc, err := ctx.DereferenceDict(arr[0])
		if err != nil || desc == nil {
			return m
		}
		if dw, ok := derefNumber(ctx, desc["DW"]); ok {
			m.missingWidth = dw
		}
		parseCIDWidths(ctx, derefArray(ctx, desc, "W"), m.cidWidths)
		return m
	}

	m := &fontMetric{missingWidth: defaultSimpleWidth}
	if fc, ok := derefNumber(ctx, fd["FirstChar"]); ok {
		m.firstChar = int(fc)
	}
	for _, w := range derefArray(ctx, fd, "Widths") {
		v, _ := derefNumber(ctx, w)
		m.widths = append(m.widths, v)
	}
	if obj, ok := fd.Find("FontDescriptor"); ok {
		if desc, err := ctx.DereferenceDict(obj); err == nil && desc != nil {
			if mw, ok := derefNumber(ctx, desc["MissingWidth"]); ok && mw > 0 {
				m.missingWidth = mw
			}
		}
	}
	return m
}

// parseCIDWidths 解析 W 数组: c [w1 w2 ...] 或 cFirst cLast w
func parseCIDWidths(ctx *model.Context, w types.Array, out map[int]float64) {
	for i := 0; i < len(w); {
		first, ok := derefNumber(ctx, w[i])
		if !ok || i+1 >= len(w) {
			return
		}
		next, err := ctx.Dereference(w[i+1])
		if err != nil {
			return
		}
		if list, isArr := next.(types.Array); isArr {
			for j, o := range list {
				if v, ok := derefNumber(ctx, o); ok {
					out[int(first)+j] = v
				}
			}
			i += 2
			continue
		}
		if i+2 >= len(w) {
			return
		}
		last, ok1 := derefNumber(ctx, next)
		v, ok2 := derefNumber(ctx, w[i+2])
		if !ok1 || !ok2 || last-first > 65535 {
			return
		}
		for c := int(first); c <= int(last); c++ {
			out[c] = v
		}
		i += 3
	}
}

func derefArray(ctx *model.Context, d types.Dict, key string) types.Array {
	obj, ok := d.Find(key)
	if !ok {
		return nil
	}
	arr, err := ctx.DereferenceArray(obj)
	if err != nil {
		return nil
	}
	return arr
}

func derefNumber(ctx *model.Context, obj types.Object) (float64, bool) {
	if obj == nil {
		return 0, false
	}
	o, err := ctx.Dereference(obj)
	if err != nil {
		return 0, false
	}
	switch v := o.(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}

// cidProfile CID 字体的字符集信息
type cidProfile struct {
	Ordering   string
	Supplement int
	Encoding   string
}

var cidProfiles = map[string]cidProfile{
	"HeiseiKakuGo-W5":    {"Japan1", 2, "UniJIS-UCS2-H"},
	"HeiseiMin-W3":       {"Japan1", 2, "UniJIS-UCS2-H"},
	"KozMinPro-Regular":  {"Japan1", 4, "UniJIS-UCS2-H"},
	"STSong-Light":       {"GB1", 2, "UniGB-UCS2-H"},
	"STSongStd-Light":    {"GB1", 4, "UniGB-UCS2-H"},
	"MSung-Light":        {"CNS1", 0, "UniCNS-UCS2-H"},
	"MHei-Medium":        {"CNS1", 0, "UniCNS-UCS2-H"},
	"HYSMyeongJo-Medium": {"Korea1", 1, "UniKS-UCS2-H"},
	"HYGoThic-Medium":    {"Korea1", 1, "UniKS-UCS2-H"},
}

// profileFor 未登记的字体名按日文字符集处理
func profileFor(name string) cidProfile {
	if p, ok := cidProfiles[name]; ok {
		return p
	}
	return cidProfile{"Japan1", 2, "UniJIS-UCS2-H"}
}

// latinFontDict 标准 14 字体，WinAnsi 编码
func latinFontDict(base string) types.Dict {
	return types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name(base),
		"Encoding": types.Name("WinAnsiEncoding"),
	}
}

// newCIDFont 写入 Type0 字体及其后代字体、字体描述符，返回 Type0 字典的引用
func newCIDFont(ctx *model.Context, base string) (*types.IndirectRef, error) {
	profile := profileFor(base)
	descriptor := types.Dict{
		"Type":        types.Name("FontDescriptor"),
		"FontName":    types.Name(base),
		"Flags":       types.Integer(4),
		"FontBBox":    types.Array{types.Integer(-200), types.Integer(-331), types.Integer(1200), types.Integer(1032)},
		"ItalicAngle": types.Integer(0),
		"Ascent":      types.Integer(880),
		"Descent":     types.Integer(-120),
		"CapHeight":   types.Integer(700),
		"StemV":       types.Integer(80),
	}
	descRef, err := ctx.IndRefForNewObject(descriptor)
	if err != nil {
		return nil, fmt.Errorf("创建字体描述符失败: %w", err)
	}
	descendant := types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("CIDFontType0"),
		"BaseFont": types.Name(base),
		"CIDSystemInfo": types.Dict{
			"Registry":   types.StringLiteral("Adobe"),
			"Ordering":   types.StringLiteral(profile.Ordering),
			"Supplement": types.Integer(profile.Supplement),
		},
		"FontDescriptor": *descRef,
		"DW":             types.Integer(1000),
		// 半角拉丁字符
		"W": types.Array{types.Integer(1), types.Integer(95), types.Integer(550)},
	}
	descendantRef, err := ctx.IndRefForNewObject(descendant)
	if err != nil {
		return nil, fmt.Errorf("创建后代字体失败: %w", err)
	}
	type0 := types.Dict{
		"Type":            types.Name("Font"),
		"Subtype":         types.Name("Type0"),
		"BaseFont":        types.Name(base + "-" + profile.Encoding),
		"Encoding":        types.Name(profile.Encoding),
		"DescendantFonts": types.Array{*descendantRef},
	}
	return ctx.IndRefForNewObject(type0)
}

// encodeText 按字体编码文本
func encodeText(face replacer.FontFace, text string) ([]byte, error) {
	if face.Script == layout.ScriptCJK {
		return encodeUCS2(text)
	}
	return encodeWinAnsi(text)
}

func encodeWinAnsi(text string) ([]byte, error) {
	b, err := charmap.Windows1252.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %q 无法使用 WinAnsi 编码", ErrUnsupportedGlyph, text)
	}
	return b, nil
}

func encodeUCS2(text string) ([]byte, error) {
	for _, r := range text {
		if r > 0xFFFF {
			return nil, fmt.Errorf("%w: %U 超出 UCS-2 范围", ErrUnsupportedGlyph, r)
		}
	}
	enc := xunicode.UTF16(xunicode.BigEndian, xunicode.IgnoreBOM).NewEncoder()
	b, err := enc.Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedGlyph, err)
	}
	return b, nil
}

// GlyphChecker 用本地 TrueType 字体检查字符覆盖
type GlyphChecker struct {
	name string
	font *truetype.Font
}

// LoadGlyphChecker 解析字体文件
func LoadGlyphChecker(path string) (*GlyphChecker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取字体文件失败: %w", err)
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("解析字体文件失败: %w", err)
	}
	return &GlyphChecker{
		name: f.Name(truetype.NameIDFontFullName),
		font: f,
	}, nil
}

// Name 字体全名
func (g *GlyphChecker) Name() string {
	return g.name
}

// Missing 返回字体中没有字形的字符（去重，保持出现顺序）
func (g *GlyphChecker) Missing(text string) []rune {
	var missing []rune
	seen := make(map[rune]bool)
	for _, r := range text {
		if unicode.IsSpace(r) || seen[r] {
			continue
		}
		seen[r] = true
		if g.font.Index(r) == 0 {
			missing = append(missing, r)
		}
	}
	return missing
}

// Check 存在缺失字形时返回 ErrUnsupportedGlyph
func (g *GlyphChecker) Check(text string) error {
	missing := g.Missing(text)
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: 字体 %s 缺少 %s", ErrUnsupportedGlyph, g.name, strings.TrimSpace(string(missing)))
}
