package pdf

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"

	"pdf-replacer/layout"
	"pdf-replacer/replacer"
)

// writeFixture 生成两行文字的测试 PDF，第一行为红色，背后有浅色底纹
func writeFixture(t *testing.T) string {
	t.Helper()
	doc := gofpdf.New("P", "pt", "Letter", "")
	doc.AddPage()
	doc.SetFillColor(230, 240, 255)
	doc.Rect(40, 40, 300, 60, "F")

	doc.SetFont("Helvetica", "", 12)
	doc.SetTextColor(200, 0, 0)
	doc.Text(50, 70, "Hello world")

	doc.SetFont("Helvetica", "B", 16)
	doc.SetTextColor(0, 0, 0)
	doc.Text(50, 140, "Second line")

	path := filepath.Join(t.TempDir(), "fixture.pdf")
	if err := doc.OutputFileAndClose(path); err != nil {
		t.Fatalf("生成测试PDF失败: %v", err)
	}
	return path
}

func openFixture(t *testing.T) *Document {
	t.Helper()
	doc, err := Open(writeFixture(t))
	if err != nil {
		t.Fatalf("打开PDF失败: %v", err)
	}
	t.Cleanup(doc.Close)
	return doc
}

// firstLine 第一行文字的区域（左上原点）
var firstLine = layout.Rect{X0: 48, Y0: 58, X1: 130, Y1: 74}

// TestLoadPage 测试页面加载
func TestLoadPage(t *testing.T) {
	doc := openFixture(t)
	if doc.PageCount() != 1 {
		t.Fatalf("页数 = %d, 期望 1", doc.PageCount())
	}

	page, err := doc.LoadPage(1)
	if err != nil {
		t.Fatalf("加载页面失败: %v", err)
	}
	if !page.Parsed() {
		t.Fatalf("内容流应可解析: %v", page.ParseError())
	}
	if b := page.Bounds(); b.Width() != 612 || b.Height() != 792 {
		t.Errorf("页面尺寸 = %v", b)
	}
	if len(page.TextShows()) != 2 {
		t.Fatalf("文字操作数 = %d, 期望 2", len(page.TextShows()))
	}

	if _, err := doc.LoadPage(2); err == nil {
		t.Error("超出范围的页码应返回错误")
	}
}

// TestEraseAndCommit 测试内容擦除、绘制与写回
func TestEraseAndCommit(t *testing.T) {
	doc := openFixture(t)
	page, err := doc.LoadPage(1)
	if err != nil {
		t.Fatal(err)
	}

	mode, err := page.EraseText(firstLine, false)
	if err != nil {
		t.Fatalf("擦除失败: %v", err)
	}
	if mode != replacer.EraseContent {
		t.Fatalf("擦除方式 = %v, 期望 content", mode)
	}
	// 同一区域再次擦除时已无文字可删
	if mode, _ := page.EraseText(firstLine, false); mode != replacer.EraseCover {
		t.Errorf("重复擦除方式 = %v, 期望 cover", mode)
	}

	style := replacer.TextStyle{
		Font:  replacer.FontFace{Name: "Helvetica", Script: layout.ScriptLatin},
		Size:  11,
		Color: layout.Color{R: 200},
	}
	lines := []replacer.PlacedLine{{Text: "Bonjour le monde", X: 48, Baseline: 69}}
	if err := page.DrawText(lines, style); err != nil {
		t.Fatalf("绘制失败: %v", err)
	}
	if !page.Dirty() {
		t.Fatal("页面应有待写回的修改")
	}
	if err := doc.Commit(page); err != nil {
		t.Fatalf("写回失败: %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.pdf")
	if err := doc.Save(out); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	reopened, err := Open(out)
	if err != nil {
		t.Fatalf("重新打开失败: %v", err)
	}
	defer reopened.Close()

	result, err := NewExtractor(nil).Extract(reopened, 0)
	if err != nil {
		t.Fatalf("提取失败: %v", err)
	}
	text := result.Text()
	if strings.Contains(text, "Hello") {
		t.Errorf("原文应已删除: %q", text)
	}
	for _, want := range []string{"Bonjour le monde", "Second line"} {
		if !strings.Contains(text, want) {
			t.Errorf("输出中缺少 %q: %q", want, text)
		}
	}

	// 背景矩形保留在内容流中
	p2, err := reopened.LoadPage(1)
	if err != nil {
		t.Fatal(err)
	}
	hasFill := false
	for _, op := range p2.ops {
		if op.Operator == "re" && len(op.Operands) == 4 && op.Operands[0].Raw == "40.00" {
			hasFill = true
		}
	}
	if !hasFill {
		t.Error("背景图形不应被删除")
	}
}

// TestEraseCoverFallback 测试覆盖擦除
func TestEraseCoverFallback(t *testing.T) {
	doc := openFixture(t)
	page, err := doc.LoadPage(1)
	if err != nil {
		t.Fatal(err)
	}

	empty := layout.Rect{X0: 400, Y0: 400, X1: 500, Y1: 420}
	mode, err := page.EraseText(empty, false)
	if err != nil || mode != replacer.EraseCover {
		t.Fatalf("空白区域擦除 = %v, %v, 期望 cover", mode, err)
	}
	if mode, _ := page.EraseText(firstLine, true); mode != replacer.EraseCover {
		t.Errorf("强制覆盖擦除方式 = %v", mode)
	}
	if page.removedCount() != 0 {
		t.Error("覆盖擦除不应删除文字操作")
	}
	if !strings.Contains(page.painted.String(), "400 372 100 20 re") {
		t.Errorf("覆盖矩形坐标错误: %s", page.painted.String())
	}
}

// TestDrawTextFailureLeavesNothing 测试编码失败时不写入任何内容
func TestDrawTextFailureLeavesNothing(t *testing.T) {
	doc := openFixture(t)
	page, err := doc.LoadPage(1)
	if err != nil {
		t.Fatal(err)
	}

	style := replacer.TextStyle{
		Font: replacer.FontFace{Name: "Helvetica", Script: layout.ScriptLatin},
		Size: 12,
	}
	lines := []replacer.PlacedLine{
		{Text: "fine", X: 10, Baseline: 20},
		{Text: "日本語", X: 10, Baseline: 34},
	}
	err = page.DrawText(lines, style)
	if !errors.Is(err, ErrUnsupportedGlyph) {
		t.Fatalf("错误 = %v, 期望 ErrUnsupportedGlyph", err)
	}
	if page.painted.Len() != 0 {
		t.Errorf("失败后不应有绘制内容: %s", page.painted.String())
	}
}

// TestCJKFontCommit 测试 CJK 字体资源写入
func TestCJKFontCommit(t *testing.T) {
	doc := openFixture(t)
	page, err := doc.LoadPage(1)
	if err != nil {
		t.Fatal(err)
	}
	style := replacer.TextStyle{
		Font: replacer.FontFace{Name: "HeiseiKakuGo-W5", Script: layout.ScriptCJK, Bold: true, SyntheticBold: true},
		Size: 10,
	}
	if err := page.DrawText([]replacer.PlacedLine{{Text: "こんにちは", X: 50, Baseline: 200}}, style); err != nil {
		t.Fatalf("绘制失败: %v", err)
	}
	painted := page.painted.String()
	for _, want := range []string{"<30533093306B3061306F> Tj", "2 Tr", "/RplF1 10 Tf"} {
		if !strings.Contains(painted, want) {
			t.Errorf("绘制内容缺少 %q:\n%s", want, painted)
		}
	}
	if err := doc.Commit(page); err != nil {
		t.Fatalf("写回失败: %v", err)
	}
	if err := doc.Save(filepath.Join(t.TempDir(), "cjk.pdf")); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
}

// TestClosedDocument 测试关闭后的致命错误
func TestClosedDocument(t *testing.T) {
	doc, err := Open(writeFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	page, err := doc.LoadPage(1)
	if err != nil {
		t.Fatal(err)
	}
	doc.Close()

	if _, err := page.EraseText(firstLine, false); !errors.Is(err, replacer.ErrDocumentClosed) {
		t.Errorf("擦除错误 = %v, 期望 ErrDocumentClosed", err)
	}
	if _, err := doc.LoadPage(1); !errors.Is(err, replacer.ErrDocumentClosed) {
		t.Errorf("加载错误 = %v, 期望 ErrDocumentClosed", err)
	}
	if err := doc.Save(filepath.Join(t.TempDir(), "x.pdf")); !errors.Is(err, replacer.ErrDocumentClosed) {
		t.Errorf("保存错误 = %v, 期望 ErrDocumentClosed", err)
	}
}

// TestApplyColors 测试片段颜色补全
func TestApplyColors(t *testing.T) {
	doc := openFixture(t)
	page, err := doc.LoadPage(1)
	if err != nil {
		t.Fatal(err)
	}
	frags := []layout.Fragment{
		{Index: 0, Text: "Hello world", Rect: layout.Rect{X0: 50, Y0: 58, X1: 115, Y1: 73}, Font: layout.FontStyle{Size: 12}},
		{Index: 1, Text: "Second line", Rect: layout.Rect{X0: 50, Y0: 124, X1: 140, Y1: 144}, Font: layout.FontStyle{Size: 16}},
	}
	got := page.ApplyColors(frags)
	if got[0].Font.Color != (layout.Color{R: 200}) {
		t.Errorf("第一行颜色 = %+v", got[0].Font.Color)
	}
	if got[1].Font.Color != (layout.Color{}) {
		t.Errorf("第二行颜色 = %+v", got[1].Font.Color)
	}
}

// TestEncodeText 测试文本编码
func TestEncodeText(t *testing.T) {
	latin := replacer.FontFace{Name: "Helvetica", Script: layout.ScriptLatin}
	cjk := replacer.FontFace{Name: "HeiseiKakuGo-W5", Script: layout.ScriptCJK}

	if b, err := encodeText(latin, "café – “x”"); err != nil || len(b) != 10 {
		t.Errorf("WinAnsi 编码 = %x, %v", b, err)
	}
	if _, err := encodeText(latin, "日本"); !errors.Is(err, ErrUnsupportedGlyph) {
		t.Errorf("WinAnsi 应拒绝 CJK: %v", err)
	}
	if b, err := encodeText(cjk, "日本"); err != nil || hexString(b) != "<65E5672C>" {
		t.Errorf("UCS-2 编码 = %s, %v", hexString(b), err)
	}
	if _, err := encodeText(cjk, "𠀋"); !errors.Is(err, ErrUnsupportedGlyph) {
		t.Errorf("UCS-2 应拒绝增补平面字符: %v", err)
	}
}

// contentPage 用手写内容流构造页面，字宽使用默认值
func contentPage(t *testing.T, src string) *Page {
	t.Helper()
	ops, err := ParseContent([]byte(src))
	if err != nil {
		t.Fatalf("解析内容流失败: %v", err)
	}
	return &Page{
		doc:     &Document{},
		geo:     Geometry{Number: 1, URX: 612, URY: 792},
		ops:     ops,
		removed: make([]bool, len(ops)),
		shows:   scanTextShows(ops, nil),
		parsed:  true,
		fonts:   make(map[string]replacer.FontFace),
	}
}

// visibleShows 重新解析保留的内容，返回仍带字形的绘制操作
func visibleShows(t *testing.T, page *Page) []TextShow {
	t.Helper()
	ops, err := ParseContent(page.keptContent())
	if err != nil {
		t.Fatalf("保留内容无法解析: %v", err)
	}
	var out []TextShow
	for _, s := range scanTextShows(ops, nil) {
		if len(s.Codes) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// probeRect 只包含某个绘制操作探测点的小区域
func probeRect(page *Page, s TextShow) layout.Rect {
	x, y := page.geo.ToTopLeft(s.ProbeX, s.ProbeY)
	return layout.Rect{X0: x - 0.5, Y0: y - 0.5, X1: x + 0.5, Y1: y + 0.5}
}

// TestEraseKeepsFollowingShowPosition 删除同一 BT 内的前一个操作后，后续文字不应左移
func TestEraseKeepsFollowingShowPosition(t *testing.T) {
	page := contentPage(t, "BT /F1 12 Tf 72 700 Td (Hello) Tj ( World) Tj ET")
	shows := page.TextShows()
	if len(shows) != 2 {
		t.Fatalf("文字操作数 = %d, 期望 2", len(shows))
	}

	mode, err := page.EraseText(layout.Rect{X0: 70, Y0: 80, X1: 100, Y1: 94}, false)
	if err != nil || mode != replacer.EraseContent {
		t.Fatalf("擦除 = %v, %v", mode, err)
	}
	if !page.removed[shows[0].Op] || page.removed[shows[1].Op] {
		t.Fatalf("只应删除第一个操作: %v", page.removed)
	}

	kept := visibleShows(t, page)
	if len(kept) != 1 || string(kept[0].Codes) != " World" {
		t.Fatalf("保留的文字 = %+v", kept)
	}
	if math.Abs(kept[0].OriginX-105.36) > 1e-3 || math.Abs(kept[0].OriginY-700) > 1e-3 {
		t.Errorf("保留文字起点 = (%v, %v), 期望 (105.36, 700)", kept[0].OriginX, kept[0].OriginY)
	}
}

// multiShowContent 同一 BT 内混合 Tj、TJ、' 与 "，并在中途修改间距和水平缩放
const multiShowContent = `q 1 0 0 1 10 -20 cm 0.2 0.4 0.6 rg
BT /F1 12 Tf 14 TL 72 700 Td
(Hello) Tj ( World) Tj
[(Alpha) -250 (Beta)] TJ
(Next line) '
2 1 (Spaced line) "
50 Tz (Narrow) Tj (Tail) Tj
ET Q`

// TestPartialEraseInTextBlock 删除 BT 内任意一部分操作，其余操作位置保持不变
func TestPartialEraseInTextBlock(t *testing.T) {
	tests := []struct {
		name  string
		erase []string
	}{
		{"首个Tj", []string{"Hello"}},
		{"TJ数组", []string{"AlphaBeta"}},
		{"单引号", []string{"Next line"}},
		{"双引号", []string{"Spaced line"}},
		{"水平缩放", []string{"Narrow"}},
		{"多个不相邻", []string{" World", "Next line", "Tail"}},
		{"引号连续删除", []string{"Next line", "Spaced line"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := contentPage(t, multiShowContent)
			before := page.TextShows()
			if len(before) != 7 {
				t.Fatalf("文字操作数 = %d, 期望 7", len(before))
			}

			erased := make(map[string]bool)
			for _, text := range tt.erase {
				erased[text] = true
			}
			var want []TextShow
			for _, s := range before {
				if !erased[string(s.Codes)] {
					want = append(want, s)
					continue
				}
				if _, err := page.EraseText(probeRect(page, s), false); err != nil {
					t.Fatalf("擦除 %q 失败: %v", s.Codes, err)
				}
			}
			if page.removedCount() != len(tt.erase) {
				t.Fatalf("删除数量 = %d, 期望 %d", page.removedCount(), len(tt.erase))
			}

			got := visibleShows(t, page)
			if len(got) != len(want) {
				t.Fatalf("保留操作数 = %d, 期望 %d", len(got), len(want))
			}
			for i := range want {
				if string(got[i].Codes) != string(want[i].Codes) {
					t.Errorf("第 %d 个保留操作 = %q, 期望 %q", i, got[i].Codes, want[i].Codes)
				}
				if math.Abs(got[i].OriginX-want[i].OriginX) > 1e-3 || math.Abs(got[i].OriginY-want[i].OriginY) > 1e-3 {
					t.Errorf("%q 起点 = (%v, %v), 期望 (%v, %v)", got[i].Codes,
						got[i].OriginX, got[i].OriginY, want[i].OriginX, want[i].OriginY)
				}
				if math.Abs(got[i].EndX-want[i].EndX) > 1e-3 {
					t.Errorf("%q 终点 = %v, 期望 %v", got[i].Codes, got[i].EndX, want[i].EndX)
				}
				if got[i].Color != want[i].Color {
					t.Errorf("%q 颜色 = %v, 期望 %v", got[i].Codes, got[i].Color, want[i].Color)
				}
			}
		})
	}
}
