package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
)

// Level 日志级别
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel 解析级别字符串，无法识别时返回 INFO
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Fields 日志附加字段
type Fields map[string]interface{}

// Options 日志配置
type Options struct {
	Level    Level
	File     string // 为空时只输出到控制台
	Console  bool
	Writer   io.Writer // 控制台输出，默认 os.Stderr
	DebugDir string    // SaveDebugData 的输出目录
}

// Logger 带级别和字段的日志记录器
type Logger struct {
	logger   *log.Logger
	file     *os.File
	level    Level
	debugDir string
	mutex    sync.Mutex
	prefix   string
}

// New 创建日志记录器
func New(opts Options) (*Logger, error) {
	var writers []io.Writer
	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("创建日志文件失败: %w", err)
		}
		file = f
		writers = append(writers, f)
	}
	if opts.Console || file == nil {
		if opts.Writer != nil {
			writers = append(writers, opts.Writer)
		} else {
			writers = append(writers, os.Stderr)
		}
	}

	return &Logger{
		logger:   log.New(io.MultiWriter(writers...), "", log.LstdFlags),
		file:     file,
		level:    opts.Level,
		debugDir: opts.DebugDir,
	}, nil
}

// NewWriter 输出到指定 writer，测试中使用
func NewWriter(w io.Writer, level Level) *Logger {
	return &Logger{
		logger: log.New(w, "", 0),
		level:  level,
	}
}

// Nop 丢弃所有输出
func Nop() *Logger {
	return NewWriter(io.Discard, LevelError+1)
}

// With 返回带固定前缀的子记录器，共享输出
func (l *Logger) With(prefix string) *Logger {
	return &Logger{
		logger:   l.logger,
		level:    l.level,
		debugDir: l.debugDir,
		prefix:   strings.TrimSpace(l.prefix + " " + prefix),
	}
}

// SetLevel 修改级别
func (l *Logger) SetLevel(level Level) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.level = level
}

// Enabled 该级别是否会输出
func (l *Logger) Enabled(level Level) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return level >= l.level
}

// Debug 调试信息
func (l *Logger) Debug(message string, fields ...Fields) {
	l.log(LevelDebug, message, fields...)
}

// Info 一般信息
func (l *Logger) Info(message string, fields ...Fields) {
	l.log(LevelInfo, message, fields...)
}

// Warn 警告
func (l *Logger) Warn(message string, fields ...Fields) {
	l.log(LevelWarn, message, fields...)
}

// Error 错误，err 以 "错误" 字段附加
func (l *Logger) Error(message string, err error, fields ...Fields) {
	data := Fields{}
	if len(fields) > 0 {
		for k, v := range fields[0] {
			data[k] = v
		}
	}
	if err != nil {
		data["错误"] = err.Error()
	}
	l.log(LevelError, message, data)
}

// Timing 记录操作耗时
func (l *Logger) Timing(operation string, duration time.Duration, fields ...Fields) {
	data := Fields{
		"操作": operation,
		"耗时": duration.String(),
		"毫秒": duration.Milliseconds(),
	}
	if len(fields) > 0 {
		for k, v := range fields[0] {
			data[k] = v
		}
	}
	l.Info("操作耗时统计", data)
}

func (l *Logger) log(level Level, message string, fields ...Fields) {
	if l == nil || !l.Enabled(level) {
		return
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(level.String())
	b.WriteString("] ")
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteString(" ")
	}
	b.WriteString(message)

	// 字段按键排序，保证输出稳定
	if len(fields) > 0 && fields[0] != nil {
		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " | %s: %v", k, fields[0][k])
		}
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.logger.Println(b.String())
}

// SaveDebugData 将调试数据以 JSON 写入调试目录
func (l *Logger) SaveDebugData(filename string, data interface{}) error {
	if l.debugDir == "" {
		return nil
	}
	if err := os.MkdirAll(l.debugDir, 0755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}

	var content []byte
	switch v := data.(type) {
	case string:
		content = []byte(v)
	case []byte:
		content = v
	default:
		var err error
		content, err = json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("序列化调试数据失败: %w", err)
		}
	}

	path := filepath.Join(l.debugDir, filename)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("保存调试数据失败: %w", err)
	}
	l.Debug("调试数据已保存", Fields{"文件": path, "大小": FormatBytes(int64(len(content)))})
	return nil
}

// Close 关闭日志文件
func (l *Logger) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Truncate 按显示宽度截断，东亚宽字符按 2 列计算
func Truncate(s string, maxWidth int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// FormatBytes 格式化字节数
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
