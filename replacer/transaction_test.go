package replacer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"pdf-replacer/layout"
)

// fakePage 记录擦除与绘制调用
type fakePage struct {
	number   int
	bounds   layout.Rect
	mode     EraseMode
	eraseErr error
	failOn   string // 译文包含该子串时绘制失败
	panicOn  string
	winAnsi  bool // 拉丁字体只能编码 Latin-1 字符

	erased []layout.Rect
	drawn  [][]PlacedLine
	styles []TextStyle
}

func newFakePage(number int) *fakePage {
	return &fakePage{number: number, bounds: layout.NewRect(0, 0, 612, 792), mode: EraseContent}
}

func (p *fakePage) Number() int         { return p.number }
func (p *fakePage) Bounds() layout.Rect { return p.bounds }

func (p *fakePage) EraseText(rect layout.Rect, forceCover bool) (EraseMode, error) {
	if p.eraseErr != nil {
		return EraseNone, p.eraseErr
	}
	p.erased = append(p.erased, rect)
	if forceCover {
		return EraseCover, nil
	}
	return p.mode, nil
}

func (p *fakePage) DrawText(lines []PlacedLine, style TextStyle) error {
	for _, l := range lines {
		if p.failOn != "" && strings.Contains(l.Text, p.failOn) {
			return errors.New("unsupported glyph")
		}
		if p.panicOn != "" && strings.Contains(l.Text, p.panicOn) {
			panic("font table corrupted")
		}
		if p.winAnsi && style.Font.Script != layout.ScriptCJK {
			for _, r := range l.Text {
				if r > 0xFF {
					return fmt.Errorf("%w: %q", ErrUnsupportedGlyph, r)
				}
			}
		}
	}
	p.drawn = append(p.drawn, lines)
	p.styles = append(p.styles, style)
	return nil
}

func fragment(idx int, text string, rect layout.Rect, size float64) layout.Fragment {
	return layout.Fragment{
		Index: idx,
		Text:  text,
		Rect:  rect,
		Font:  layout.FontStyle{Name: "Helvetica", Size: size, Color: layout.Color{R: 200}},
	}
}

func newTx(t *testing.T, opts Options) *Transaction {
	t.Helper()
	if opts.Fonts == (FontConfig{}) {
		opts.Fonts = DefaultFontConfig()
	}
	tx, err := New(opts)
	if err != nil {
		t.Fatalf("创建事务失败: %v", err)
	}
	return tx
}

func TestApplyPaintsInOrder(t *testing.T) {
	frags := []layout.Fragment{
		fragment(0, "Title", layout.NewRect(50, 50, 200, 70), 16),
		fragment(1, "Body", layout.NewRect(50, 100, 300, 120), 10),
	}
	units := layout.GroupExternal(frags, []layout.GroupRange{
		{Start: 1, End: 1, Text: "本文"},
		{Start: 0, End: 0, Text: "見出し"},
	}).Units
	// 故意倒序传入
	units[0], units[1] = units[1], units[0]

	page := newFakePage(1)
	tx := newTx(t, Options{})
	if err := tx.Apply(page, units); err != nil {
		t.Fatalf("Apply 失败: %v", err)
	}

	if len(page.drawn) != 2 {
		t.Fatalf("绘制次数 %d, 期望 2", len(page.drawn))
	}
	if page.drawn[0][0].Text != "見出し" || page.drawn[1][0].Text != "本文" {
		t.Errorf("绘制顺序错误: %q %q", page.drawn[0][0].Text, page.drawn[1][0].Text)
	}
	first := page.drawn[0][0]
	if first.X != 50 || first.Baseline != 50+page.styles[0].Size {
		t.Errorf("首行位置错误: %+v size=%v", first, page.styles[0].Size)
	}
	if page.styles[0].Font.Script != layout.ScriptCJK || page.styles[0].Font.Name != "HeiseiKakuGo-W5" {
		t.Errorf("应选择 CJK 字体: %+v", page.styles[0].Font)
	}
	if page.styles[0].Color != (layout.Color{R: 200}) {
		t.Errorf("颜色应继承首个片段: %+v", page.styles[0].Color)
	}
	if len(tx.Events(1)) != 0 {
		t.Errorf("不应有降级事件: %v", tx.Events(1))
	}
}

// TestApplyIdempotentWhenUnchanged 译文与原文相同时不擦除也不绘制
func TestApplyIdempotentWhenUnchanged(t *testing.T) {
	frags := []layout.Fragment{
		fragment(0, "Same", layout.NewRect(0, 0, 100, 20), 12),
		fragment(1, "Text", layout.NewRect(0, 30, 100, 50), 12),
		fragment(2, "Untranslated", layout.NewRect(0, 60, 100, 80), 12),
	}
	units := layout.AttachSingles(layout.GroupSingletons(frags), map[int]string{0: "Same", 1: "Text"})

	page := newFakePage(2)
	tx := newTx(t, Options{})
	if err := tx.Apply(page, units); err != nil {
		t.Fatalf("Apply 失败: %v", err)
	}
	if len(page.erased) != 0 || len(page.drawn) != 0 {
		t.Errorf("不应修改页面: erased=%d drawn=%d", len(page.erased), len(page.drawn))
	}
	if len(tx.Events(2)) != 0 {
		t.Errorf("不应有降级事件: %v", tx.Events(2))
	}
	for _, o := range tx.Outcomes(2) {
		if !o.Skipped {
			t.Errorf("单元 %s 应被跳过", o.UnitID)
		}
	}
}

func TestApplyRecordsOverflow(t *testing.T) {
	frags := []layout.Fragment{fragment(0, "短", layout.NewRect(0, 0, 50, 14), 12)}
	units := layout.AttachSingles(layout.GroupSingletons(frags), map[int]string{0: strings.Repeat("漢", 40)})

	page := newFakePage(3)
	tx := newTx(t, Options{})
	if err := tx.Apply(page, units); err != nil {
		t.Fatalf("Apply 失败: %v", err)
	}
	events := tx.Events(3)
	if len(events) != 1 || events[0].Kind != EventOverflow {
		t.Fatalf("期望一个溢出事件: %v", events)
	}
	if events[0].FontSize != layout.MinFontSize || events[0].Overflow <= 0 {
		t.Errorf("事件内容错误: %+v", events[0])
	}
	if len(page.drawn) != 1 {
		t.Error("溢出时仍应尽力绘制")
	}
	t.Logf("事件: %s", events[0])
}

func TestApplyPaintFailureContinues(t *testing.T) {
	frags := []layout.Fragment{
		fragment(0, "a", layout.NewRect(0, 0, 200, 20), 12),
		fragment(1, "b", layout.NewRect(0, 30, 200, 50), 12),
		fragment(2, "c", layout.NewRect(0, 60, 200, 80), 12),
	}
	units := layout.AttachSingles(layout.GroupSingletons(frags), map[int]string{0: "bad glyph", 1: "boom", 2: "fine"})

	page := newFakePage(4)
	page.failOn = "bad"
	page.panicOn = "boom"
	tx := newTx(t, Options{})
	if err := tx.Apply(page, units); err != nil {
		t.Fatalf("单元失败不应中止页面: %v", err)
	}
	if len(page.erased) != 3 {
		t.Errorf("三个单元都应擦除: %d", len(page.erased))
	}
	if len(page.drawn) != 1 || page.drawn[0][0].Text != "fine" {
		t.Errorf("只有最后一个单元应绘制成功: %v", page.drawn)
	}
	failures := 0
	for _, e := range tx.Events(4) {
		if e.Kind == EventPaintFailure {
			failures++
		}
	}
	if failures != 2 {
		t.Errorf("绘制失败事件 %d, 期望 2", failures)
	}
}

func TestApplyFatalEraseError(t *testing.T) {
	frags := []layout.Fragment{fragment(0, "a", layout.NewRect(0, 0, 200, 20), 12)}
	units := layout.AttachSingles(layout.GroupSingletons(frags), map[int]string{0: "b"})

	page := newFakePage(5)
	page.eraseErr = ErrDocumentClosed
	tx := newTx(t, Options{})
	if err := tx.Apply(page, units); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("文档级错误应向上传递: %v", err)
	}
}

func TestApplyCoverFallbackAndClipping(t *testing.T) {
	frags := []layout.Fragment{fragment(0, "edge", layout.NewRect(580, 770, 700, 800), 10)}
	units := layout.AttachSingles(layout.GroupSingletons(frags), map[int]string{0: "Rand"})

	page := newFakePage(6)
	page.mode = EraseCover
	tx := newTx(t, Options{})
	if err := tx.Apply(page, units); err != nil {
		t.Fatalf("Apply 失败: %v", err)
	}
	if page.erased[0] != layout.NewRect(580, 770, 612, 792) {
		t.Errorf("区域应裁剪到页面: %v", page.erased[0])
	}
	kinds := map[EventKind]bool{}
	for _, e := range tx.Events(6) {
		kinds[e.Kind] = true
	}
	if !kinds[EventClipped] || !kinds[EventEraseFallback] {
		t.Errorf("缺少裁剪或覆盖事件: %v", tx.Events(6))
	}
	if o := tx.Outcomes(6); len(o) != 1 || o[0].EraseMode != EraseCover {
		t.Errorf("应标记覆盖擦除: %+v", o)
	}
}

func TestApplyDegenerateRegion(t *testing.T) {
	frags := []layout.Fragment{fragment(0, "x", layout.NewRect(700, 10, 720, 20), 10)}
	units := layout.AttachSingles(layout.GroupSingletons(frags), map[int]string{0: "y"})

	page := newFakePage(7)
	tx := newTx(t, Options{})
	if err := tx.Apply(page, units); err != nil {
		t.Fatalf("Apply 失败: %v", err)
	}
	found := false
	for _, e := range tx.Events(7) {
		if e.Kind == EventDegenerateRegion {
			found = true
		}
	}
	if !found {
		t.Errorf("页外区域应记录退化事件: %v", tx.Events(7))
	}
}

func TestApplyScaleMode(t *testing.T) {
	frags := []layout.Fragment{fragment(0, "abc", layout.NewRect(0, 0, 33, 20), 12)}
	units := layout.AttachSingles(layout.GroupSingletons(frags), map[int]string{0: "abcdefghij"})

	page := newFakePage(8)
	tx := newTx(t, Options{FitMode: FitScale})
	if err := tx.Apply(page, units); err != nil {
		t.Fatalf("Apply 失败: %v", err)
	}
	if len(page.drawn[0]) != 1 || page.styles[0].Size > 6.0001 {
		t.Errorf("缩放模式结果错误: %v size=%v", page.drawn[0], page.styles[0].Size)
	}
}

// TestApplyScaleModeWidthOverflow 只有宽度超出时在事件中记录宽度溢出
func TestApplyScaleModeWidthOverflow(t *testing.T) {
	frags := []layout.Fragment{fragment(0, "abc", layout.NewRect(0, 0, 20, 20), 12)}
	units := layout.AttachSingles(layout.GroupSingletons(frags), map[int]string{0: strings.Repeat("x", 100)})

	page := newFakePage(8)
	tx := newTx(t, Options{FitMode: FitScale})
	if err := tx.Apply(page, units); err != nil {
		t.Fatalf("Apply 失败: %v", err)
	}
	events := tx.Events(8)
	if len(events) != 1 || events[0].Kind != EventOverflow {
		t.Fatalf("期望一个溢出事件: %v", events)
	}
	if events[0].Overflow != 0 {
		t.Errorf("高度未溢出: %+v", events[0])
	}
	if !strings.Contains(events[0].Detail, "宽度超出 310.0pt") {
		t.Errorf("应记录宽度溢出: %q", events[0].Detail)
	}
	if !strings.Contains(events[0].String(), "宽度超出") {
		t.Errorf("事件描述缺少宽度溢出: %s", events[0])
	}
}

// TestApplyRetriesWithCJKFont 拉丁字体无法编码的字符改用 CJK 字体绘制
func TestApplyRetriesWithCJKFont(t *testing.T) {
	frags := []layout.Fragment{
		fragment(0, "Tokyo Station", layout.NewRect(0, 0, 300, 20), 12),
		fragment(1, "alpha", layout.NewRect(0, 30, 300, 50), 12),
	}
	units := layout.AttachSingles(layout.GroupSingletons(frags), map[int]string{
		0: "Tokyo 東京 Station",
		1: "Alpha αβγ",
	})

	page := newFakePage(10)
	page.winAnsi = true
	tx := newTx(t, Options{})
	if err := tx.Apply(page, units); err != nil {
		t.Fatalf("Apply 失败: %v", err)
	}
	if len(page.drawn) != 2 {
		t.Fatalf("两个单元都应绘制: %v", page.drawn)
	}
	for i, style := range page.styles {
		if style.Font.Script != layout.ScriptCJK || style.Font.Name != "HeiseiKakuGo-W5" {
			t.Errorf("第 %d 个单元字体 = %+v, 期望 CJK 字体", i, style.Font)
		}
	}
	for _, e := range tx.Events(10) {
		if e.Kind == EventPaintFailure {
			t.Errorf("重试成功后不应记录绘制失败: %s", e)
		}
	}
	for _, o := range tx.Outcomes(10) {
		if !o.Painted || o.Font != "HeiseiKakuGo-W5" {
			t.Errorf("结果应记录实际字体: %+v", o)
		}
	}
}

// TestApplyRetryOnlyForGlyphErrors 其它绘制错误不换字体重试
func TestApplyRetryOnlyForGlyphErrors(t *testing.T) {
	frags := []layout.Fragment{fragment(0, "a", layout.NewRect(0, 0, 200, 20), 12)}
	units := layout.AttachSingles(layout.GroupSingletons(frags), map[int]string{0: "bad Tokyo 東京"})

	page := newFakePage(11)
	page.failOn = "bad"
	page.winAnsi = true
	tx := newTx(t, Options{})
	if err := tx.Apply(page, units); err != nil {
		t.Fatalf("Apply 失败: %v", err)
	}
	if len(page.drawn) != 0 {
		t.Errorf("不应绘制: %v", page.drawn)
	}
	events := tx.Events(11)
	if len(events) != 1 || events[0].Kind != EventPaintFailure {
		t.Errorf("期望一个绘制失败事件: %v", events)
	}
}

func TestBoldSelectionFromDominantMember(t *testing.T) {
	frags := []layout.Fragment{
		fragment(0, "a", layout.NewRect(0, 0, 50, 20), 12),
		fragment(1, "bold words", layout.NewRect(50, 0, 200, 20), 12),
	}
	frags[1].Font.Bold = true
	units := layout.GroupExternal(frags, []layout.GroupRange{{Start: 0, End: 1, Text: "Fett"}}).Units

	page := newFakePage(9)
	tx := newTx(t, Options{})
	if err := tx.Apply(page, units); err != nil {
		t.Fatalf("Apply 失败: %v", err)
	}
	if f := page.styles[0].Font; !f.Bold || f.Name != "Helvetica-Bold" {
		t.Errorf("应选择粗体: %+v", f)
	}
}

// TestApplyPagesConcurrently 不同页面并发执行，事件互不干扰
func TestApplyPagesConcurrently(t *testing.T) {
	tx := newTx(t, Options{})
	var wg sync.WaitGroup
	for n := 1; n <= 8; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			frags := []layout.Fragment{fragment(0, "x", layout.NewRect(0, 0, 30, 10), 12)}
			units := layout.AttachSingles(layout.GroupSingletons(frags), map[int]string{0: strings.Repeat("long text ", 20)})
			if err := tx.Apply(newFakePage(n), units); err != nil {
				t.Errorf("第 %d 页失败: %v", n, err)
			}
		}(n)
	}
	wg.Wait()

	all := tx.AllEvents()
	if len(all) != 8 {
		t.Fatalf("事件总数 %d, 期望 8", len(all))
	}
	for i, e := range all {
		if e.Page != i+1 {
			t.Errorf("事件应按页码排序: %v", all)
			break
		}
	}
}

func TestFontConfigSelect(t *testing.T) {
	cfg := FontConfig{Latin: "Times-Roman", CJK: "STSong-Light"}
	if f := cfg.Select(layout.ScriptLatin, true); !f.SyntheticBold || f.Name != "Times-Roman" {
		t.Errorf("无粗体变体时应合成粗体: %+v", f)
	}
	if f := cfg.Select(layout.ScriptCJK, false); f.Name != "STSong-Light" || f.Bold {
		t.Errorf("CJK 常规字体错误: %+v", f)
	}
	if err := (FontConfig{}).Validate(); err == nil {
		t.Error("空配置应校验失败")
	}
	if _, err := ParseFitMode("squeeze"); err == nil {
		t.Error("未知模式应报错")
	}
}
