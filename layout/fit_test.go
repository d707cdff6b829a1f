package layout

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"testing/quick"
)

func TestEstimateWidth(t *testing.T) {
	cases := []struct {
		text string
		size float64
		want float64
	}{
		{"Hello", 12, 5 * 12 * NarrowFactor},
		{"日本語", 10, 30},
		{"ひらがなカタカナ", 10, 80},
		{"Ａ１", 10, 20}, // 全角形式
		{"a漢", 10, 5.5 + 10},
		{"", 12, 0},
	}
	for _, tc := range cases {
		if got := EstimateWidth(tc.text, tc.size); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("EstimateWidth(%q, %v) = %v, 期望 %v", tc.text, tc.size, got, tc.want)
		}
	}
}

func TestWrapBreaksAtWhitespace(t *testing.T) {
	// 每个字符 5.5，行宽 40 可放 7 个字符
	lines := Wrap("aaa bbb ccc", 40, 10)
	want := []string{"aaa bbb", "ccc"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("换行结果 %q, 期望 %q", lines, want)
	}
}

func TestWrapHardBreaksLongToken(t *testing.T) {
	lines := Wrap("abcdefghij", 22, 10) // 每行 4 个字符
	want := []string{"abcd", "efgh", "ij"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("硬断结果 %q, 期望 %q", lines, want)
	}

	// 行宽小于单个字符时每行放一个字符，不能死循环
	lines = Wrap("xyz", 1, 10)
	if len(lines) != 3 {
		t.Errorf("极窄行宽应每行一个字符: %q", lines)
	}
}

func TestWrapCJKAndNewlines(t *testing.T) {
	lines := Wrap("日本語の文章\n二行目", 30, 10)
	want := []string{"日本語", "の文章", "二行目"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("换行结果 %q, 期望 %q", lines, want)
	}
}

// TestWrapPreservesText 换行不丢失非空白字符
func TestWrapPreservesText(t *testing.T) {
	alphabet := []rune("abc def 日本語 ghij　ＡＢ xyz")
	f := func(seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		n := r.Intn(80)
		runes := make([]rune, n)
		for i := range runes {
			runes[i] = alphabet[r.Intn(len(alphabet))]
		}
		text := string(runes)
		lines := Wrap(text, 5+r.Float64()*200, 6+float64(r.Intn(20)))
		strip := func(s string) string { return strings.Join(strings.Fields(s), "") }
		return strip(strings.Join(lines, "")) == strip(text)
	}
	if err := quick.Check(f, quickConfig()); err != nil {
		t.Error(err)
	}
}

// TestFitShortLatin 5 个窄字符放入 100x20 的区域
func TestFitShortLatin(t *testing.T) {
	res := Fit("Hello", NewRect(0, 0, 100, 20), 12)
	if !res.Fits || res.FontSize != 12 {
		t.Fatalf("期望 12pt 且放得下, 实际 %+v", res)
	}
	if len(res.Lines) != 1 || res.Lines[0] != "Hello" {
		t.Errorf("行内容 %q", res.Lines)
	}
}

// TestFitCJKOverflow 40 个汉字无法放入 50x14 的区域
func TestFitCJKOverflow(t *testing.T) {
	text := strings.Repeat("漢", 40)
	res := Fit(text, NewRect(0, 0, 50, 14), 12)
	if res.Fits {
		t.Fatal("不应放得下")
	}
	if res.FontSize != MinFontSize {
		t.Errorf("字号 %v, 期望 %v", res.FontSize, MinFontSize)
	}
	// 6pt 下每行 8 个字，共 5 行
	if len(res.Lines) != 5 {
		t.Errorf("行数 %d, 期望 5", len(res.Lines))
	}
	if want := 5*MinFontSize*LineHeightFactor - 14; math.Abs(res.Overflow-want) > 1e-9 {
		t.Errorf("溢出高度 %v, 期望 %v", res.Overflow, want)
	}
}

func TestFitDegenerateRegion(t *testing.T) {
	for _, rect := range []Rect{NewRect(0, 0, 0, 10), NewRect(0, 0, 10, 0)} {
		res := Fit("text", rect, 12)
		if res.Fits || !res.Degenerate || res.FontSize != MinFontSize {
			t.Errorf("退化区域结果错误: %+v", res)
		}
		if len(res.Lines) != 1 || res.Lines[0] != "text" {
			t.Errorf("退化区域应原样返回文本: %q", res.Lines)
		}
	}
}

func TestFitShrinksToLargestFittingSize(t *testing.T) {
	// 两行文本在高度 30 内：2*s*1.2 <= 30 => s <= 12.5
	res := Fit("aaaa bbbb", NewRect(0, 0, 30, 30), 20)
	if !res.Fits {
		t.Fatalf("应能放下: %+v", res)
	}
	t.Logf("字号 %v, 行 %q", res.FontSize, res.Lines)
	if res.TotalHeight() > 30 {
		t.Errorf("总高度 %v 超出区域", res.TotalHeight())
	}
	next := res.FontSize + 1
	lines := Wrap("aaaa bbbb", 30, next)
	if float64(len(lines))*next*LineHeightFactor <= 30 {
		t.Errorf("更大的字号 %v 也能放下", next)
	}
}

// TestFitReturnsMaximumFittingSize 返回的字号是所有候选中能放下的最大者，且范围合法
func TestFitReturnsMaximumFittingSize(t *testing.T) {
	words := []string{"lorem", "ipsum", "漢字", "テキスト", "a", "dolor", "sit"}
	f := func(seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		var parts []string
		for i := r.Intn(15) + 1; i > 0; i-- {
			parts = append(parts, words[r.Intn(len(words))])
		}
		text := strings.Join(parts, " ")
		rect := NewRect(0, 0, 10+r.Float64()*300, 5+r.Float64()*150)
		maxSize := 1 + r.Float64()*100

		res := Fit(text, rect, maxSize)
		if res.FontSize < MinFontSize || res.FontSize > MaxFontSize {
			return false
		}
		if !res.Fits {
			return res.FontSize == MinFontSize
		}
		// 比结果大的候选都放不下
		hi := math.Floor(math.Min(maxSize, MaxFontSize))
		for s := hi; s > res.FontSize; s-- {
			if blockHeight(Wrap(text, rect.Width(), s), s) <= rect.Height() {
				return false
			}
		}
		return res.TotalHeight() <= rect.Height()+1e-9
	}
	if err := quick.Check(f, quickConfig()); err != nil {
		t.Error(err)
	}
}

func TestFitClampsToMaxFontSize(t *testing.T) {
	res := Fit("A", NewRect(0, 0, 500, 500), 200)
	if res.FontSize != MaxFontSize || !res.Fits {
		t.Errorf("字号应限制为 %v: %+v", MaxFontSize, res)
	}
}

// TestFitBelowMinimumStart 起始字号低于下限时按下限判断是否放得下
func TestFitBelowMinimumStart(t *testing.T) {
	res := Fit("tiny", NewRect(0, 0, 100, 20), 4.5)
	if res.FontSize != MinFontSize || !res.Fits || res.Overflow != 0 {
		t.Errorf("下限字号放得下时应返回 Fits=true: %+v", res)
	}
	if len(res.Lines) != 1 || res.Lines[0] != "tiny" {
		t.Errorf("换行结果 %q", res.Lines)
	}

	// 下限字号仍放不下：Fits=false 并报告溢出高度
	res = Fit("aaa bbb ccc", NewRect(0, 0, 20, 5), 5)
	if res.FontSize != MinFontSize || res.Fits || res.Overflow <= 0 {
		t.Errorf("下限字号放不下时应返回 Fits=false: %+v", res)
	}
}

func TestFitScaleOnly(t *testing.T) {
	// 10 个窄字符 12pt 宽 66，区域宽 33 => 缩到 6pt
	res := FitScaleOnly("abcdefghij", NewRect(0, 0, 33, 20), 12)
	if math.Abs(res.FontSize-6) > 1e-9 || !res.Fits {
		t.Errorf("缩放结果 %+v", res)
	}
	if len(res.Lines) != 1 {
		t.Errorf("缩放模式不换行: %q", res.Lines)
	}

	// 缩放下限
	res = FitScaleOnly(strings.Repeat("x", 100), NewRect(0, 0, 20, 20), 12)
	if res.FontSize != MinFontSize || res.Fits {
		t.Errorf("应限制在最小字号且放不下: %+v", res)
	}
	// 只有宽度超出：高度溢出为 0，宽度溢出为 100*6*0.55-20
	if res.Overflow != 0 || math.Abs(res.OverflowWidth-(100*6*NarrowFactor-20)) > 1e-9 {
		t.Errorf("溢出量错误: 高 %v 宽 %v", res.Overflow, res.OverflowWidth)
	}

	// 宽度足够时保持原字号
	if got := ScaledFontSize("ab", 100, 9.5); got != 9.5 {
		t.Errorf("不需缩放时字号 %v", got)
	}
}

func TestAdjustForExpansion(t *testing.T) {
	if got := AdjustForExpansion(12, 0.8); got != 12 {
		t.Errorf("未膨胀时应保持原字号: %v", got)
	}
	if got := AdjustForExpansion(12, 4); got != 6 {
		t.Errorf("膨胀 4 倍应为 6: %v", got)
	}
	if got := AdjustForExpansion(8, 9); got != MinFontSize {
		t.Errorf("应限制在最小字号: %v", got)
	}
}

func TestBaselines(t *testing.T) {
	res := FitResult{FontSize: 10, Lines: []string{"a", "b", "c"}}
	got := res.Baselines(100)
	want := []float64{110, 122, 134}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("第 %d 行基线 %v, 期望 %v", i, got[i], want[i])
		}
	}
}

func TestDetectScriptAndLanguage(t *testing.T) {
	cases := []struct {
		text   string
		script Script
		lang   string
	}{
		{"Hello world", ScriptLatin, "en"},
		{"こんにちは世界", ScriptCJK, "ja"},
		{"abcdefg 日本", ScriptLatin, "en"}, // 2/9 < 0.3
		{"abcdef 日本語", ScriptCJK, "ja"},  // 3/9 >= 0.3
		{"   ", ScriptLatin, "en"},
	}
	for _, tc := range cases {
		if got := DetectScript(tc.text); got != tc.script {
			t.Errorf("DetectScript(%q) = %v, 期望 %v", tc.text, got, tc.script)
		}
		if got := DetectLanguage(tc.text); got != tc.lang {
			t.Errorf("DetectLanguage(%q) = %v, 期望 %v", tc.text, got, tc.lang)
		}
	}
}
