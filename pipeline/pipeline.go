package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pdf-replacer/layout"
	"pdf-replacer/logger"
	"pdf-replacer/pdf"
	"pdf-replacer/replacer"
	"pdf-replacer/translator"
)

// Translator 每页调用一次的翻译服务，*translator.Client 实现该接口
type Translator interface {
	TranslatePage(ctx context.Context, req translator.PageRequest) (translator.PageTranslation, error)
}

// ProgressFunc 进度回调，current 为已完成的页数
type ProgressFunc func(current, total int, message string)

// Options 处理选项
type Options struct {
	Fonts       replacer.FontConfig
	FitMode     replacer.FitMode
	ForceCover  bool
	Direction   translator.Direction // 为空时按原文自动检测
	PageWorkers int
	MaxPages    int    // 0 表示全部
	OutputDir   string // 未指定输出路径时使用
	LayoutFile  string // 非空时保存版面 JSON
	GlyphFont   string // 用于 CJK 字形检查的 TrueType 文件
	Progress    ProgressFunc
	Logger      *logger.Logger
}

// Engine 文档级处理：提取、逐页翻译、分组、替换、写出
type Engine struct {
	translator Translator
	opts       Options
	log        *logger.Logger
}

// New 创建处理引擎
func New(tr Translator, opts Options) (*Engine, error) {
	if tr == nil {
		return nil, newError(CodeConfig, nil, "未配置翻译服务")
	}
	if opts.PageWorkers <= 0 {
		opts.PageWorkers = 1
	}
	if opts.Fonts == (replacer.FontConfig{}) {
		opts.Fonts = replacer.DefaultFontConfig()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{translator: tr, opts: opts, log: log}, nil
}

// PageReport 单页结果
type PageReport struct {
	Number    int                         `json:"page"`
	Fragments int                         `json:"fragments"`
	Units     int                         `json:"units"`
	Painted   int                         `json:"painted"`
	Rejected  []string                    `json:"rejected_groups,omitempty"`
	Error     string                      `json:"error,omitempty"` // 翻译失败时页面保持原样
	Events    []replacer.DegradationEvent `json:"events,omitempty"`
}

// Report 处理报告
type Report struct {
	Input      string                      `json:"input"`
	Output     string                      `json:"output"`
	Direction  translator.Direction        `json:"direction"`
	Pages      []PageReport                `json:"pages"`
	Events     []replacer.DegradationEvent `json:"events"`
	Outcomes   []replacer.UnitOutcome      `json:"outcomes"`
	Statistics layout.Statistics           `json:"statistics"`
	Duration   time.Duration               `json:"duration"`
	Layout     *layout.Document            `json:"-"`
}

// FailedPages 翻译失败的页码
func (r *Report) FailedPages() []int {
	var out []int
	for _, p := range r.Pages {
		if p.Error != "" {
			out = append(out, p.Number)
		}
	}
	return out
}

// Run 处理 input 并写出到 output（为空时按 OutputPath 生成）
//
// 页面并发处理，页内单元顺序执行。单页翻译失败时该页保持原样；
// 所有含文字的页面都翻译失败时返回 CodeTranslation。认证错误立即中止。
func (e *Engine) Run(ctx context.Context, input, output string) (*Report, error) {
	start := time.Now()
	if _, err := os.Stat(input); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(CodeInputNotFound, err, "输入文件不存在: %s", input)
		}
		return nil, newError(CodeInputRead, err, "无法访问输入文件: %s", input)
	}

	docOpts := []pdf.Option{pdf.WithLogger(e.log)}
	if e.opts.GlyphFont != "" {
		checker, err := pdf.LoadGlyphChecker(e.opts.GlyphFont)
		if err != nil {
			return nil, newError(CodeConfig, err, "加载字形检查字体失败")
		}
		docOpts = append(docOpts, pdf.WithGlyphChecker(checker))
	}

	doc, err := pdf.Open(input, docOpts...)
	if err != nil {
		return nil, newError(CodeInputRead, err, "打开PDF失败")
	}
	defer doc.Close()

	extracted, err := pdf.NewExtractor(e.log).Extract(doc, e.opts.MaxPages)
	if err != nil {
		return nil, newError(CodeInputRead, err, "提取文本失败")
	}

	direction := e.opts.Direction
	if direction == "" {
		direction = translator.DetectDirection(extracted.Text())
		e.log.Info("自动检测翻译方向", logger.Fields{"方向": direction})
	}
	if output == "" {
		output = OutputPath(input, e.opts.OutputDir, direction.TargetLanguage())
	}

	tx, err := replacer.New(replacer.Options{
		Fonts:      e.opts.Fonts,
		FitMode:    e.opts.FitMode,
		ForceCover: e.opts.ForceCover,
		Logger:     e.log,
	})
	if err != nil {
		return nil, newError(CodeConfig, err, "创建替换事务失败")
	}

	report := &Report{
		Input:     input,
		Output:    output,
		Direction: direction,
		Pages:     make([]PageReport, len(extracted.Pages)),
		Layout:    extracted,
	}

	total := len(extracted.Pages)
	var mu sync.Mutex
	done := 0
	progress := func(page int, message string) {
		mu.Lock()
		done++
		current := done
		mu.Unlock()
		if e.opts.Progress != nil {
			e.opts.Progress(current, total, fmt.Sprintf("第 %d 页%s", page, message))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.PageWorkers)
	for i := range extracted.Pages {
		pl := &extracted.Pages[i]
		pr := &report.Pages[i]
		g.Go(func() error {
			if err := e.processPage(gctx, doc, tx, pl, pr, direction); err != nil {
				return err
			}
			if pr.Error != "" {
				progress(pl.Number, "翻译失败，保持原样")
			} else {
				progress(pl.Number, "处理完成")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var pe *ProcessingError
		if errors.As(err, &pe) {
			return nil, pe
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, newError(CodeUnknown, err, "处理已取消")
		}
		return nil, newError(CodeOutputWrite, err, "写回页面失败")
	}

	if err := allPagesFailed(report); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, newError(CodeOutputWrite, err, "创建输出目录失败")
	}
	if err := doc.Save(output); err != nil {
		return nil, newError(CodeOutputWrite, err, "保存输出文件失败")
	}
	if e.opts.LayoutFile != "" {
		if err := extracted.Save(e.opts.LayoutFile); err != nil {
			return nil, newError(CodeOutputWrite, err, "保存版面文件失败")
		}
	}

	report.Events = tx.AllEvents()
	report.Outcomes = tx.AllOutcomes()
	for i := range report.Pages {
		report.Pages[i].Events = tx.Events(report.Pages[i].Number)
	}
	report.Statistics = layout.ComputeStatistics(extracted.Pages)
	report.Duration = time.Since(start)

	for _, ev := range report.Events {
		e.log.Info("降级事件", logger.Fields{"描述": ev.String()})
	}
	stem := strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))
	if err := e.log.SaveDebugData(stem+"_report.json", report); err != nil {
		e.log.Warn("保存调试报告失败", logger.Fields{"错误": err.Error()})
	}
	e.log.Timing("文档处理", report.Duration, logger.Fields{
		"输入":   input,
		"输出":   output,
		"页数":   total,
		"降级数":  len(report.Events),
		"失败页数": len(report.FailedPages()),
	})
	return report, nil
}

// processPage 处理单页；返回的错误会中止整个文档
func (e *Engine) processPage(ctx context.Context, doc *pdf.Document, tx *replacer.Transaction,
	pl *layout.PageLayout, pr *PageReport, direction translator.Direction) error {
	pr.Number = pl.Number

	page, err := doc.LoadPage(pl.Number)
	if err != nil {
		return newError(CodeInputRead, err, "加载第 %d 页失败", pl.Number)
	}
	fragments := page.ApplyColors(pl.Fragments)
	pl.Fragments = fragments
	pr.Fragments = len(fragments)
	if len(fragments) == 0 {
		return nil
	}

	trans, err := e.translator.TranslatePage(ctx, translator.PageRequest{
		Page:      pl.Number,
		Direction: direction,
		Fragments: fragments,
	})
	if err != nil {
		if errors.Is(err, translator.ErrAuthentication) {
			return newError(CodeConfig, err, "翻译服务认证失败")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pr.Error = err.Error()
		pl.Units = layout.GroupSingletons(fragments)
		pr.Units = len(pl.Units)
		e.log.Error("页面翻译失败，保持原样", err, logger.Fields{"页码": pl.Number})
		return nil
	}

	var units []layout.Unit
	if len(trans.Groups) > 0 {
		grouped := layout.GroupExternal(fragments, trans.Groups)
		units = grouped.Units
		for _, rej := range grouped.Rejected {
			pr.Rejected = append(pr.Rejected, rej.Error())
			e.log.Warn("分组被拒绝，回退为单片段", logger.Fields{"页码": pl.Number, "原因": rej.Error()})
		}
	} else {
		units = layout.GroupSingletons(fragments)
	}
	units = layout.AttachSingles(units, trans.Singles)
	sort.SliceStable(units, func(i, j int) bool { return units[i].StartIndex < units[j].StartIndex })
	pl.Units = units
	pr.Units = len(units)

	if err := tx.Apply(page, units); err != nil {
		return newError(CodeOutputWrite, err, "第 %d 页替换失败", pl.Number)
	}
	for _, o := range tx.Outcomes(pl.Number) {
		if o.Painted {
			pr.Painted++
		}
	}
	if err := doc.Commit(page); err != nil {
		return newError(CodeOutputWrite, err, "第 %d 页写回失败", pl.Number)
	}
	return nil
}

// allPagesFailed 所有含文字的页面都翻译失败时返回 CodeTranslation
func allPagesFailed(r *Report) error {
	withText, failed := 0, 0
	var last string
	for _, p := range r.Pages {
		if p.Fragments == 0 {
			continue
		}
		withText++
		if p.Error != "" {
			failed++
			last = p.Error
		}
	}
	if withText > 0 && failed == withText {
		return newError(CodeTranslation, errors.New(last), "所有页面翻译失败")
	}
	return nil
}
