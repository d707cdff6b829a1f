package pdf

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdf-replacer/layout"
	"pdf-replacer/logger"
	"pdf-replacer/replacer"
)

// 缺少 MediaBox 时使用 US Letter
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// Geometry 页面几何信息，MediaBox 为 PDF 用户空间坐标
type Geometry struct {
	Number   int
	LLX      float64
	LLY      float64
	URX      float64
	URY      float64
	Rotation int
}

// Width 页面宽度
func (g Geometry) Width() float64 { return g.URX - g.LLX }

// Height 页面高度
func (g Geometry) Height() float64 { return g.URY - g.LLY }

// Bounds 左上原点的页面矩形
func (g Geometry) Bounds() layout.Rect {
	return layout.Rect{X0: 0, Y0: 0, X1: g.Width(), Y1: g.Height()}
}

// ToTopLeft 用户空间坐标转换为左上原点坐标
func (g Geometry) ToTopLeft(x, y float64) (float64, float64) {
	return x - g.LLX, g.URY - y
}

// ToUser 左上原点坐标转换为用户空间坐标
func (g Geometry) ToUser(x, y float64) (float64, float64) {
	return x + g.LLX, g.URY - y
}

// Document 打开的 PDF 文档
//
// 页面内容的读取与写回都在文档锁内进行，页面对象本身只由一个 goroutine 使用。
type Document struct {
	path   string
	mu     sync.Mutex
	ctx    *model.Context
	closed atomic.Bool

	fontNames map[string]string             // 字体名 -> 资源名
	fontRefs  map[string]*types.IndirectRef // 资源名 -> 字体对象

	glyphs *GlyphChecker
	log    *logger.Logger
}

// Option 文档选项
type Option func(*Document)

// WithLogger 设置日志
func WithLogger(l *logger.Logger) Option {
	return func(d *Document) { d.log = l }
}

// WithGlyphChecker 绘制 CJK 文本前检查字形覆盖
func WithGlyphChecker(g *GlyphChecker) Option {
	return func(d *Document) { d.glyphs = g }
}

// Open 读取 PDF 文件
func Open(path string, opts ...Option) (*Document, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取PDF失败: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("读取页数失败: %w", err)
	}
	d := &Document{
		path:      path,
		ctx:       ctx,
		fontNames: make(map[string]string),
		fontRefs:  make(map[string]*types.IndirectRef),
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log.Debug("PDF已打开", logger.Fields{
		"文件": path,
		"页数": ctx.PageCount,
	})
	return d, nil
}

// Validate 校验 PDF 文件结构
func Validate(path string) error {
	return api.ValidateFile(path, model.NewDefaultConfiguration())
}

// Path 源文件路径
func (d *Document) Path() string {
	return d.path
}

// PageCount 页数
func (d *Document) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return 0
	}
	return d.ctx.PageCount
}

// Geometry 读取页面几何信息
func (d *Document) Geometry(n int) (Geometry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return Geometry{}, replacer.ErrDocumentClosed
	}
	_, _, inh, err := d.ctx.PageDict(n, true)
	if err != nil {
		return Geometry{}, fmt.Errorf("读取第 %d 页失败: %w", n, err)
	}
	return geometryOf(n, inh), nil
}

func geometryOf(n int, inh *model.InheritedPageAttrs) Geometry {
	g := Geometry{Number: n, URX: defaultPageWidth, URY: defaultPageHeight}
	if inh == nil {
		return g
	}
	if box := inh.MediaBox; box != nil {
		g.LLX, g.LLY, g.URX, g.URY = box.LL.X, box.LL.Y, box.UR.X, box.UR.Y
	}
	g.Rotation = inh.Rotate
	return g
}

// LoadPage 读取页面内容流并建立可修改的页面
//
// 内容流无法解析时页面仍可使用，但所有擦除都退化为覆盖。
func (d *Document) LoadPage(n int) (*Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil, replacer.ErrDocumentClosed
	}
	if n < 1 || n > d.ctx.PageCount {
		return nil, fmt.Errorf("页码超出范围: %d (共 %d 页)", n, d.ctx.PageCount)
	}
	pageDict, _, inh, err := d.ctx.PageDict(n, true)
	if err != nil {
		return nil, fmt.Errorf("读取第 %d 页失败: %w", n, err)
	}

	p := &Page{
		doc:   d,
		geo:   geometryOf(n, inh),
		fonts: make(map[string]replacer.FontFace),
	}
	if inh != nil {
		p.inherited = inh.Resources
	}

	content, refs, err := d.pageContent(pageDict)
	if err != nil {
		return nil, err
	}
	p.contentRefs = refs

	ops, err := ParseContent(content)
	if err != nil {
		p.parseErr = err
		d.log.Warn("内容流解析失败，该页使用覆盖擦除", logger.Fields{
			"页码": n,
			"错误": err.Error(),
		})
		return p, nil
	}
	p.parsed = true
	p.ops = ops
	p.removed = make([]bool, len(ops))
	p.shows = scanTextShows(ops, loadFontMetrics(d.ctx, p.inherited))

	d.log.Debug("页面已加载", logger.Fields{
		"页码":    n,
		"操作符数":  len(ops),
		"文字操作数": len(p.shows),
		"内容长度":  logger.FormatBytes(int64(len(content))),
	})
	return p, nil
}

// pageContent 拼接页面全部内容流
func (d *Document) pageContent(pageDict types.Dict) ([]byte, types.Array, error) {
	obj, found := pageDict.Find("Contents")
	if !found || obj == nil {
		return nil, nil, nil
	}
	var refs types.Array
	switch o := obj.(type) {
	case types.IndirectRef:
		target, err := d.ctx.Dereference(o)
		if err != nil {
			return nil, nil, fmt.Errorf("读取内容流失败: %w", err)
		}
		if arr, ok := target.(types.Array); ok {
			refs = arr
		} else {
			refs = types.Array{o}
		}
	case types.Array:
		refs = o
	default:
		return nil, nil, fmt.Errorf("不支持的 Contents 类型: %T", obj)
	}

	var buf bytes.Buffer
	for _, ref := range refs {
		sd, _, err := d.ctx.DereferenceStreamDict(ref)
		if err != nil {
			return nil, nil, fmt.Errorf("读取内容流失败: %w", err)
		}
		if sd == nil {
			continue
		}
		if err := sd.Decode(); err != nil {
			return nil, nil, fmt.Errorf("解码内容流失败: %w", err)
		}
		buf.Write(sd.Content)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), refs, nil
}

// fontResource 返回字体的资源名，同一字体在整个文档中共用一个资源名
func (d *Document) fontResource(face replacer.FontFace) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := face.Name + "/" + face.Script.String()
	if name, ok := d.fontNames[key]; ok {
		return name
	}
	name := fmt.Sprintf("RplF%d", len(d.fontNames)+1)
	d.fontNames[key] = name
	return name
}

// fontRef 按需创建字体对象，调用方持有锁
func (d *Document) fontRef(res string, face replacer.FontFace) (*types.IndirectRef, error) {
	if ref, ok := d.fontRefs[res]; ok {
		return ref, nil
	}
	var (
		ref *types.IndirectRef
		err error
	)
	if face.Script == layout.ScriptCJK {
		ref, err = newCIDFont(d.ctx, face.Name)
	} else {
		ref, err = d.ctx.IndRefForNewObject(latinFontDict(face.Name))
	}
	if err != nil {
		return nil, fmt.Errorf("创建字体 %s 失败: %w", face.Name, err)
	}
	d.fontRefs[res] = ref
	return ref, nil
}

// newStream 写入新的内容流对象
func (d *Document) newStream(content []byte) (*types.IndirectRef, error) {
	sd, err := d.ctx.NewStreamDictForBuf(content)
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return d.ctx.IndRefForNewObject(*sd)
}

// Commit 把页面的擦除与绘制结果写回文档
func (d *Document) Commit(p *Page) error {
	if !p.Dirty() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return replacer.ErrDocumentClosed
	}

	n := p.geo.Number
	pageDict, _, _, err := d.ctx.PageDict(n, false)
	if err != nil {
		return fmt.Errorf("读取第 %d 页失败: %w", n, err)
	}
	if err := d.installFonts(pageDict, p); err != nil {
		return err
	}

	painted := p.painted.Bytes()
	if p.parsed {
		var body bytes.Buffer
		body.WriteString("q\n")
		body.Write(p.keptContent())
		body.WriteString("Q\n")
		body.Write(painted)
		ref, err := d.newStream(body.Bytes())
		if err != nil {
			return fmt.Errorf("写入第 %d 页内容流失败: %w", n, err)
		}
		pageDict["Contents"] = *ref
	} else {
		head, err := d.newStream([]byte("q\n"))
		if err != nil {
			return fmt.Errorf("写入第 %d 页内容流失败: %w", n, err)
		}
		tail, err := d.newStream(append([]byte("Q\n"), painted...))
		if err != nil {
			return fmt.Errorf("写入第 %d 页内容流失败: %w", n, err)
		}
		contents := types.Array{*head}
		contents = append(contents, p.contentRefs...)
		contents = append(contents, *tail)
		pageDict["Contents"] = contents
	}

	d.log.Debug("页面已写回", logger.Fields{
		"页码":   n,
		"删除操作": p.removedCount(),
		"绘制长度": len(painted),
	})
	return nil
}

// installFonts 把页面用到的字体加入页面资源
func (d *Document) installFonts(pageDict types.Dict, p *Page) error {
	if len(p.fonts) == 0 {
		return nil
	}
	res, err := d.pageResources(pageDict, p.inherited)
	if err != nil {
		return err
	}
	var fonts types.Dict
	if obj, ok := res.Find("Font"); ok {
		fonts, err = d.ctx.DereferenceDict(obj)
		if err != nil {
			return fmt.Errorf("读取字体资源失败: %w", err)
		}
	}
	if fonts == nil {
		fonts = types.Dict{}
		res["Font"] = fonts
	}
	for name, face := range p.fonts {
		ref, err := d.fontRef(name, face)
		if err != nil {
			return err
		}
		fonts[name] = *ref
	}
	return nil
}

func (d *Document) pageResources(pageDict types.Dict, inherited types.Dict) (types.Dict, error) {
	if obj, ok := pageDict.Find("Resources"); ok && obj != nil {
		res, err := d.ctx.DereferenceDict(obj)
		if err != nil {
			return nil, fmt.Errorf("读取页面资源失败: %w", err)
		}
		if res != nil {
			return res, nil
		}
	}
	res := types.Dict{}
	if inherited != nil {
		if clone, ok := inherited.Clone().(types.Dict); ok {
			res = clone
		}
	}
	pageDict["Resources"] = res
	return res, nil
}

// Save 写出文档
func (d *Document) Save(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return replacer.ErrDocumentClosed
	}
	if err := api.WriteContextFile(d.ctx, path); err != nil {
		return fmt.Errorf("写入PDF失败: %w", err)
	}
	return nil
}

// Close 释放文档，之后对页面的擦除会返回 ErrDocumentClosed
func (d *Document) Close() {
	d.closed.Store(true)
	d.mu.Lock()
	d.ctx = nil
	d.mu.Unlock()
}
