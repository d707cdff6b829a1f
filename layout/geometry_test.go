package layout

import (
	"math"
	"math/rand"
	"testing"
	"testing/quick"
)

// quickConfig 属性测试配置，固定种子保证可复现
func quickConfig() *quick.Config {
	return &quick.Config{
		MaxCount: 200,
		Rand:     rand.New(rand.NewSource(42)),
	}
}

func randomRect(r *rand.Rand) Rect {
	x0 := r.Float64() * 500
	y0 := r.Float64() * 700
	return NewRect(x0, y0, x0+r.Float64()*200, y0+r.Float64()*50)
}

func TestRectDerived(t *testing.T) {
	r := NewRect(10, 20, 110, 70)
	if r.Width() != 100 || r.Height() != 50 {
		t.Errorf("宽高错误: %v x %v", r.Width(), r.Height())
	}
	cx, cy := r.Center()
	if cx != 60 || cy != 45 {
		t.Errorf("中心点错误: (%v, %v)", cx, cy)
	}

	swapped := NewRect(110, 70, 10, 20)
	if swapped != r {
		t.Errorf("坐标应自动交换: %v", swapped)
	}
}

// TestUnionProperty 外接矩形必须是逐坐标的 min/max
func TestUnionProperty(t *testing.T) {
	f := func(seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		n := r.Intn(8) + 1
		rects := make([]Rect, n)
		for i := range rects {
			rects[i] = randomRect(r)
		}
		if n > 1 && r.Intn(2) == 0 {
			// 制造重叠
			rects[1] = rects[0].Expand(-1)
		}

		u, ok := UnionAll(rects)
		if !ok {
			return false
		}
		want := Rect{X0: math.Inf(1), Y0: math.Inf(1), X1: math.Inf(-1), Y1: math.Inf(-1)}
		for _, rc := range rects {
			want.X0 = math.Min(want.X0, rc.X0)
			want.Y0 = math.Min(want.Y0, rc.Y0)
			want.X1 = math.Max(want.X1, rc.X1)
			want.Y1 = math.Max(want.Y1, rc.Y1)
		}
		return u == want
	}
	if err := quick.Check(f, quickConfig()); err != nil {
		t.Error(err)
	}
}

func TestUnionSingle(t *testing.T) {
	r := NewRect(1.5, 2.25, 3.75, 9)
	u, ok := UnionAll([]Rect{r})
	if !ok || u != r {
		t.Errorf("单个矩形的外接矩形应等于自身: %v", u)
	}
	if _, ok := UnionAll(nil); ok {
		t.Error("空输入应返回 false")
	}
}

func TestIntersectClipsToPage(t *testing.T) {
	page := NewRect(0, 0, 612, 792)

	clipped := NewRect(-10, 780, 100, 800).Intersect(page)
	want := Rect{X0: 0, Y0: 780, X1: 100, Y1: 792}
	if clipped != want {
		t.Errorf("裁剪结果 %v, 期望 %v", clipped, want)
	}

	outside := NewRect(700, 10, 800, 20).Intersect(page)
	if !outside.IsDegenerate() {
		t.Errorf("页外矩形裁剪后应为退化矩形: %v", outside)
	}
}

func TestContains(t *testing.T) {
	r := NewRect(0, 0, 10, 10)
	if !r.Contains(10, 10) || r.Contains(10.01, 5) {
		t.Error("边界判断错误")
	}
	if !r.ContainsRect(NewRect(1, 1, 9, 9)) {
		t.Error("内部矩形判断错误")
	}
}
