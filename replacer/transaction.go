package replacer

import (
	"errors"
	"fmt"
	"sort"

	"pdf-replacer/layout"
	"pdf-replacer/logger"
)

// FitMode 字号求解方式
type FitMode string

const (
	// FitWrap 换行并逐级缩小字号
	FitWrap FitMode = "wrap"
	// FitScale 只按宽度缩放，不换行
	FitScale FitMode = "scale"
)

// ParseFitMode 解析求解方式，默认换行
func ParseFitMode(s string) (FitMode, error) {
	switch FitMode(s) {
	case "", FitWrap:
		return FitWrap, nil
	case FitScale:
		return FitScale, nil
	default:
		return "", fmt.Errorf("未知的排版模式: %s", s)
	}
}

// Options 事务配置
type Options struct {
	Fonts      FontConfig
	FitMode    FitMode
	ForceCover bool // 始终使用白色覆盖擦除
	Logger     *logger.Logger
}

// Transaction 逐页执行 擦除-求解-绘制
//
// 同一页内的单元按起始序号顺序执行；不同页面可以并发调用 Apply。
type Transaction struct {
	fonts      FontConfig
	fitMode    FitMode
	forceCover bool
	log        *logger.Logger
	journal    *journal
}

// New 创建事务
func New(opts Options) (*Transaction, error) {
	if err := opts.Fonts.Validate(); err != nil {
		return nil, err
	}
	mode, err := ParseFitMode(string(opts.FitMode))
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Transaction{
		fonts:      opts.Fonts,
		fitMode:    mode,
		forceCover: opts.ForceCover,
		log:        log,
		journal:    newJournal(),
	}, nil
}

// Apply 对一页的全部单元执行替换
//
// 溢出、退化区域、绘制失败都只记录为降级事件；只有擦除阶段报告的文档级错误会中止并返回。
func (t *Transaction) Apply(page Page, units []layout.Unit) error {
	pageNum := page.Number()
	bounds := page.Bounds()
	t.journal.reset(pageNum)

	ordered := make([]layout.Unit, len(units))
	copy(ordered, units)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartIndex < ordered[j].StartIndex
	})

	painted := 0
	for _, unit := range ordered {
		ok, err := t.applyUnit(page, pageNum, bounds, unit)
		if err != nil {
			return fmt.Errorf("第 %d 页单元 %s: %w", pageNum, unit.ID(), err)
		}
		if ok {
			painted++
		}
	}

	t.log.Debug("页面替换完成", logger.Fields{
		"页码":  pageNum,
		"单元数": len(ordered),
		"已绘制": painted,
		"降级数": len(t.journal.pageEvents(pageNum)),
	})
	return nil
}

// applyUnit 处理单个单元，返回是否写入了译文
func (t *Transaction) applyUnit(page Page, pageNum int, bounds layout.Rect, unit layout.Unit) (bool, error) {
	event := func(kind EventKind) DegradationEvent {
		return DegradationEvent{
			Page:   pageNum,
			UnitID: unit.ID(),
			Start:  unit.StartIndex,
			End:    unit.EndIndex,
			Kind:   kind,
		}
	}

	if len(unit.Members) == 0 || !unit.NeedsReplacement() {
		t.journal.outcome(UnitOutcome{Page: pageNum, UnitID: unit.ID(), Skipped: true})
		return false, nil
	}

	rect := unit.PlacementRect.Intersect(bounds)
	if rect != unit.PlacementRect {
		e := event(EventClipped)
		e.Detail = fmt.Sprintf("%v -> %v", unit.PlacementRect, rect)
		t.journal.record(e)
	}

	script := layout.DetectScript(unit.Replacement)
	face := t.fonts.Select(script, unit.DominantMember().Font.Bold)

	mode, err := page.EraseText(rect, t.forceCover)
	if err != nil {
		return false, fmt.Errorf("擦除失败: %w", err)
	}
	if mode == EraseCover {
		e := event(EventEraseFallback)
		e.EraseMode = mode
		t.journal.record(e)
	}

	fit := Solve(unit, rect, t.fitMode)

	switch {
	case fit.Degenerate:
		e := event(EventDegenerateRegion)
		e.EraseMode = mode
		e.FontSize = fit.FontSize
		t.journal.record(e)
	case !fit.Fits:
		e := event(EventOverflow)
		e.EraseMode = mode
		e.FontSize = fit.FontSize
		e.Overflow = fit.Overflow
		if fit.OverflowWidth > 0 {
			e.Detail = fmt.Sprintf("宽度超出 %.1fpt", fit.OverflowWidth)
		}
		t.journal.record(e)
		t.log.Info("文本溢出", logger.Fields{
			"页码":   pageNum,
			"单元":   unit.ID(),
			"字号":   fit.FontSize,
			"溢出":   fmt.Sprintf("%.1f", fit.Overflow),
			"宽度溢出": fmt.Sprintf("%.1f", fit.OverflowWidth),
		})
	}

	outcome := UnitOutcome{
		Page:      pageNum,
		UnitID:    unit.ID(),
		EraseMode: mode,
		FontSize:  fit.FontSize,
		Fits:      fit.Fits,
		Font:      face.Name,
	}

	lines := PlaceLines(fit, rect)
	style := TextStyle{Font: face, Size: fit.FontSize, Color: unit.FirstMember().Font.Color}
	err = drawSafely(page, lines, style)
	if errors.Is(err, ErrUnsupportedGlyph) && face.Script != layout.ScriptCJK {
		// 拉丁字体编码不了的字符改用 CJK 字体重试一次
		style.Font = t.fonts.Select(layout.ScriptCJK, face.Bold)
		t.log.Debug("拉丁字体无法编码，改用CJK字体", logger.Fields{
			"页码": pageNum,
			"单元": unit.ID(),
			"字体": style.Font.Name,
		})
		if err = drawSafely(page, lines, style); err == nil {
			outcome.Font = style.Font.Name
		}
	}
	if err != nil {
		e := event(EventPaintFailure)
		e.EraseMode = mode
		e.FontSize = fit.FontSize
		e.Detail = err.Error()
		t.journal.record(e)
		t.journal.outcome(outcome)
		t.log.Warn("单元绘制失败，保留擦除状态", logger.Fields{
			"页码": pageNum,
			"单元": unit.ID(),
			"译文": logger.Truncate(unit.Replacement, 40),
			"错误": err.Error(),
		})
		return false, nil
	}

	outcome.Painted = true
	t.journal.outcome(outcome)
	return true, nil
}

// Solve 以第一个成员的字号为起点求解译文字号与换行
func Solve(unit layout.Unit, rect layout.Rect, mode FitMode) layout.FitResult {
	start := unit.FirstMember().Font.Size
	if mode == FitScale {
		return layout.FitScaleOnly(unit.Replacement, rect, start)
	}
	return layout.Fit(unit.Replacement, rect, start)
}

// PlaceLines 左对齐，首行基线在区域顶部下方一个字号处
func PlaceLines(fit layout.FitResult, rect layout.Rect) []PlacedLine {
	baselines := fit.Baselines(rect.Y0)
	out := make([]PlacedLine, 0, len(fit.Lines))
	for i, line := range fit.Lines {
		if line == "" {
			continue
		}
		out = append(out, PlacedLine{Text: line, X: rect.X0, Baseline: baselines[i]})
	}
	return out
}

// drawSafely 把绘制中的 panic 转为错误
func drawSafely(page Page, lines []PlacedLine, style TextStyle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("绘制过程出错: %v", r)
		}
	}()
	return page.DrawText(lines, style)
}

// Events 某页的降级事件（只读副本）
func (t *Transaction) Events(page int) []DegradationEvent {
	return t.journal.pageEvents(page)
}

// AllEvents 所有页面的降级事件，按页码排序
func (t *Transaction) AllEvents() []DegradationEvent {
	return t.journal.allEvents()
}

// Outcomes 某页每个单元的处理结果
func (t *Transaction) Outcomes(page int) []UnitOutcome {
	return t.journal.pageOutcomes(page)
}

// AllOutcomes 所有单元的处理结果
func (t *Transaction) AllOutcomes() []UnitOutcome {
	return t.journal.allOutcomes()
}
