// replace 命令行：替换 PDF 中的文字并保持版面
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"pdf-replacer/config"
	"pdf-replacer/logger"
	"pdf-replacer/pipeline"
	"pdf-replacer/preview"
	"pdf-replacer/replacer"
	"pdf-replacer/translator"
)

const version = "1.0.0"

// options 命令行参数
type options struct {
	input        string
	output       string
	direction    string
	autoDetect   bool
	verbose      bool
	logFile      string
	envFile      string
	translations string
	fitMode      string
	layoutFile   string
	previewDir   string
	maxPages     int
	workers      int
	forceCover   bool
	noCache      bool
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("replace", flag.ContinueOnError)
	fs.SetOutput(stderr)
	o := &options{}
	fs.StringVar(&o.output, "o", "", "输出 PDF 路径（默认 OUTPUT_DIR/<文件名>_<语言>.pdf）")
	fs.StringVar(&o.direction, "d", "", "翻译方向: ja-to-en 或 en-to-ja")
	fs.BoolVar(&o.autoDetect, "a", false, "根据原文自动检测翻译方向")
	fs.BoolVar(&o.verbose, "v", false, "输出调试日志")
	fs.StringVar(&o.logFile, "l", "", "日志文件路径")
	fs.StringVar(&o.envFile, "env", ".env", "环境变量文件")
	fs.StringVar(&o.translations, "translations", "", "静态译文 JSON 文件，设置后不调用翻译服务")
	fs.StringVar(&o.fitMode, "fit", "", "排版模式: wrap 或 scale（默认 FIT_MODE）")
	fs.StringVar(&o.layoutFile, "layout", "", "保存版面 JSON，\"auto\" 表示写在输出文件旁")
	fs.StringVar(&o.previewDir, "preview", "", "为每页生成预览 PNG 的目录")
	fs.IntVar(&o.maxPages, "max-pages", -1, "最多处理的页数（默认 MAX_PAGES）")
	fs.IntVar(&o.workers, "workers", 0, "并发处理的页数（默认 PAGE_WORKERS）")
	fs.BoolVar(&o.forceCover, "force-cover", false, "总是用白色矩形覆盖原文")
	fs.BoolVar(&o.noCache, "no-cache", false, "忽略已有的翻译缓存")
	showVersion := fs.Bool("version", false, "显示版本")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "用法: replace [选项] <输入PDF>\n\n选项:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		fmt.Fprintf(stderr, "replace %s\n", version)
		return nil, flag.ErrHelp
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, fmt.Errorf("需要且只能指定一个输入文件")
	}
	o.input = fs.Arg(0)
	if o.direction == "" && !o.autoDetect {
		return nil, fmt.Errorf("请指定 -d 翻译方向或使用 -a 自动检测")
	}
	return o, nil
}

// overrides 命令行参数优先于环境变量
func (o *options) overrides() []config.Override {
	return []config.Override{func(cfg *config.Config) {
		if o.translations != "" {
			cfg.Provider.Type = translator.ProviderStatic
			cfg.Provider.StaticFile = o.translations
		}
		if o.verbose {
			cfg.LogLevel = "DEBUG"
		}
		if o.logFile != "" {
			cfg.LogFile = o.logFile
		}
		if o.workers > 0 {
			cfg.PageWorkers = o.workers
		}
		if o.maxPages >= 0 {
			cfg.MaxPages = o.maxPages
		}
		if o.forceCover {
			cfg.ForceCoverErase = true
		}
	}}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(int(code))
}

// run 执行一次替换并返回退出码
func run(ctx context.Context, args []string, stdout, stderr io.Writer) pipeline.ErrorCode {
	o, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return pipeline.CodeSuccess
	}
	if err != nil {
		fmt.Fprintf(stderr, "❌ %v\n", err)
		return pipeline.CodeUnknown
	}

	if _, err := os.Stat(o.input); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "❌ 输入文件不存在: %s\n", o.input)
		return pipeline.CodeInputNotFound
	}

	cfg, err := config.LoadWith(o.overrides(), o.envFile)
	if err != nil {
		fmt.Fprintf(stderr, "❌ 配置错误: %v\n", err)
		return pipeline.CodeConfig
	}

	logOpts := cfg.LoggerOptions()
	logOpts.Writer = stderr
	log, err := logger.New(logOpts)
	if err != nil {
		fmt.Fprintf(stderr, "❌ 创建日志失败: %v\n", err)
		return pipeline.CodeConfig
	}
	defer log.Close()

	engine, tr, err := build(cfg, o, log, stdout)
	if err != nil {
		log.Error("初始化失败", err)
		return pipeline.CodeOf(err)
	}

	report, err := engine.Run(ctx, o.input, o.output)
	if err != nil {
		log.Error("处理失败", err, logger.Fields{"错误码": pipeline.CodeOf(err).String()})
		return pipeline.CodeOf(err)
	}

	if o.previewDir != "" {
		if err := writePreviews(cfg, o.previewDir, report, log); err != nil {
			log.Error("生成预览失败", err)
			return pipeline.CodeOutputWrite
		}
	}

	stats := report.Statistics
	fmt.Fprintf(stdout, "\n✅ 完成 (%s, 提供商 %s)\n", report.Direction, tr.Provider.GetName())
	fmt.Fprintf(stdout, "   页数: %d  单元: %d  已翻译: %d\n", stats.TotalPages, stats.TotalUnits, stats.TranslatedUnits)
	fmt.Fprintf(stdout, "   平均膨胀率: %.2f  最大膨胀率: %.2f\n", stats.AvgExpansionRatio, stats.MaxExpansionRatio)
	for _, adj := range stats.Adjustments {
		fmt.Fprintf(stdout, "   第 %d 页单元 %s 膨胀率 %.2f，建议字号 %.1f\n", adj.Page, adj.UnitID, adj.Ratio, adj.SuggestedSize)
	}
	if n := len(report.Events); n > 0 {
		fmt.Fprintf(stdout, "   降级事件: %d\n", n)
	}
	if failed := report.FailedPages(); len(failed) > 0 {
		fmt.Fprintf(stdout, "   ⚠️ 翻译失败、保持原样的页: %v\n", failed)
	}
	fmt.Fprintf(stdout, "   耗时: %.1f 秒\n   输出: %s\n", report.Duration.Seconds(), report.Output)
	return pipeline.CodeSuccess
}

// build 按配置组装翻译客户端与处理引擎
func build(cfg *config.Config, o *options, log *logger.Logger, stdout io.Writer) (*pipeline.Engine, *translator.Client, error) {
	provider, err := translator.NewProvider(cfg.Provider)
	if err != nil {
		return nil, nil, &pipeline.ProcessingError{Code: pipeline.CodeConfig, Message: "创建翻译提供商失败", Err: err}
	}
	cache, err := translator.NewCache(cfg.CacheDir)
	if err != nil {
		return nil, nil, &pipeline.ProcessingError{Code: pipeline.CodeConfig, Message: "创建缓存目录失败", Err: err}
	}
	if o.noCache {
		cache.DisableCache()
	}
	client := translator.NewClient(provider, cache, log).WithRetry(cfg.MaxRetries, cfg.RetryBaseDelay)

	var direction translator.Direction
	if !o.autoDetect {
		if direction, err = translator.ParseDirection(o.direction); err != nil {
			return nil, nil, &pipeline.ProcessingError{Code: pipeline.CodeConfig, Message: "参数错误", Err: err}
		}
	}
	fitMode := cfg.FitMode
	if o.fitMode != "" {
		if fitMode, err = replacer.ParseFitMode(o.fitMode); err != nil {
			return nil, nil, &pipeline.ProcessingError{Code: pipeline.CodeConfig, Message: "参数错误", Err: err}
		}
	}
	glyphFont, err := cfg.ResolveCJKFont(log)
	if err != nil {
		return nil, nil, &pipeline.ProcessingError{Code: pipeline.CodeConfig, Message: "CJK 字体不可用", Err: err}
	}

	opts := pipeline.Options{
		Fonts:       cfg.Fonts(),
		FitMode:     fitMode,
		ForceCover:  cfg.ForceCoverErase,
		Direction:   direction,
		PageWorkers: cfg.PageWorkers,
		MaxPages:    cfg.MaxPages,
		OutputDir:   cfg.OutputDir,
		GlyphFont:   glyphFont,
		Logger:      log,
		Progress: func(current, total int, message string) {
			fmt.Fprintf(stdout, "[%d/%d] %s\n", current, total, message)
		},
	}
	switch o.layoutFile {
	case "":
	case "auto":
		if o.output == "" {
			// 输出路径取决于检测到的方向，放在输出目录下
			opts.LayoutFile = filepath.Join(cfg.OutputDir, layoutName(o.input))
		} else {
			opts.LayoutFile = pipeline.LayoutPath(o.output)
		}
	default:
		opts.LayoutFile = o.layoutFile
	}

	engine, err := pipeline.New(client, opts)
	if err != nil {
		return nil, nil, err
	}
	return engine, client, nil
}

func layoutName(input string) string {
	return filepath.Base(pipeline.LayoutPath(input))
}

// writePreviews 每页写一张 page-001.png
func writePreviews(cfg *config.Config, dir string, report *pipeline.Report, log *logger.Logger) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建预览目录失败: %w", err)
	}
	opts := preview.Options{FitMode: cfg.FitMode}
	if path, err := cfg.ResolveCJKFont(log); err == nil && path != "" {
		if f, err := preview.LoadFont(path); err == nil {
			opts.Font = f
		}
	}
	for _, page := range report.Layout.Pages {
		path := filepath.Join(dir, fmt.Sprintf("page-%03d.png", page.Number))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("创建预览文件失败: %w", err)
		}
		err = preview.WritePNG(f, page, report.Events, opts)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	log.Info("预览已生成", logger.Fields{"目录": dir, "页数": len(report.Layout.Pages)})
	return nil
}
