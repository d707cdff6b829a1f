package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, LevelWarn)

	l.Debug("调试")
	l.Info("信息")
	l.Warn("警告", Fields{"页码": 3})
	l.Error("失败", errors.New("boom"))

	out := buf.String()
	t.Logf("输出:\n%s", out)
	if strings.Contains(out, "调试") || strings.Contains(out, "信息") {
		t.Error("低于级别的日志不应输出")
	}
	if !strings.Contains(out, "[WARN] 警告 | 页码: 3") {
		t.Error("缺少警告日志")
	}
	if !strings.Contains(out, "错误: boom") {
		t.Error("错误字段缺失")
	}
}

func TestFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, LevelDebug).With("[第 2 页]")
	l.Info("完成", Fields{"b": 2, "a": 1})
	if got := strings.TrimSpace(buf.String()); got != "[INFO] [第 2 页] 完成 | a: 1 | b: 2" {
		t.Errorf("输出格式 %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": LevelDebug, "WARNING": LevelWarn, "error": LevelError, "": LevelInfo, "x": LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, 期望 %v", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("短文本不应截断: %q", got)
	}
	got := Truncate("日本語のテキストです", 10)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("应以省略号结尾: %q", got)
	}
	if len([]rune(got)) > 10 {
		t.Errorf("截断后过长: %q", got)
	}
}

func TestFileAndDebugData(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{Level: LevelDebug, File: filepath.Join(dir, "logs", "run.log"), DebugDir: filepath.Join(dir, "debug")})
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	l.Info("写入文件")
	if err := l.SaveDebugData("units.json", map[string]int{"units": 3}); err != nil {
		t.Fatalf("保存调试数据失败: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "logs", "run.log"))
	if err != nil || !strings.Contains(string(data), "写入文件") {
		t.Errorf("日志文件内容错误: %v %q", err, data)
	}
	debug, err := os.ReadFile(filepath.Join(dir, "debug", "units.json"))
	if err != nil || !strings.Contains(string(debug), `"units": 3`) {
		t.Errorf("调试数据错误: %v %q", err, debug)
	}
}

func TestFormatBytes(t *testing.T) {
	if FormatBytes(512) != "512 B" || FormatBytes(2048) != "2.0 KB" {
		t.Errorf("格式化错误: %s %s", FormatBytes(512), FormatBytes(2048))
	}
}
