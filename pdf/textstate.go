package pdf

import (
	"math"
	"strconv"

	"pdf-replacer/layout"
)

// Matrix 仿射变换矩阵 [a b c d e f]
type Matrix struct {
	A, B, C, D, E, F float64
}

// Identity 单位矩阵
func Identity() Matrix {
	return Matrix{A: 1, D: 1}
}

// Translate 平移矩阵
func Translate(tx, ty float64) Matrix {
	return Matrix{A: 1, D: 1, E: tx, F: ty}
}

// Multiply 返回 m × n（先应用 m 再应用 n）
func (m Matrix) Multiply(n Matrix) Matrix {
	return Matrix{
		A: m.A*n.A + m.B*n.C,
		B: m.A*n.B + m.B*n.D,
		C: m.C*n.A + m.D*n.C,
		D: m.C*n.B + m.D*n.D,
		E: m.E*n.A + m.F*n.C + n.E,
		F: m.E*n.B + m.F*n.D + n.F,
	}
}

// Apply 变换一个点
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.C*y + m.E, m.B*x + m.D*y + m.F
}

// VerticalScale 纵向缩放系数
func (m Matrix) VerticalScale() float64 {
	return math.Hypot(m.C, m.D)
}

// TextShow 一次文字绘制操作的几何信息，坐标为 PDF 用户空间
type TextShow struct {
	Op       int // 在操作序列中的下标
	Font     string
	Size     float64 // 实际显示字号
	OriginX  float64
	OriginY  float64
	ProbeX   float64 // 首个字形内部的探测点
	ProbeY   float64
	EndX     float64
	EndY     float64
	Color    layout.Color
	Codes    []byte
	Operator string
	// Shift 与本次绘制推进量等效的 TJ 调整值，删除后用它保持文本矩阵位置
	Shift float64
}

type graphicsState struct {
	ctm  Matrix
	fill layout.Color
}

type textState struct {
	tm, tlm   Matrix
	font      string
	size      float64
	charSpace float64
	wordSpace float64
	scale     float64
	leading   float64
	rise      float64
}

// textInterpreter 跟踪图形状态与文本状态，只关心定位文字所需的操作符
type textInterpreter struct {
	gs      graphicsState
	stack   []graphicsState
	ts      textState
	metrics map[string]*fontMetric
	shows   []TextShow
}

// scanTextShows 计算每个文字绘制操作的位置与颜色
func scanTextShows(ops []Operation, metrics map[string]*fontMetric) []TextShow {
	in := &textInterpreter{
		gs:      graphicsState{ctm: Identity()},
		ts:      textState{tm: Identity(), tlm: Identity(), scale: 1, size: 12},
		metrics: metrics,
	}
	for i, op := range ops {
		in.step(i, op)
	}
	return in.shows
}

func (in *textInterpreter) step(i int, op Operation) {
	ts := &in.ts
	switch op.Operator {
	case "q":
		in.stack = append(in.stack, in.gs)
	case "Q":
		if n := len(in.stack); n > 0 {
			in.gs = in.stack[n-1]
			in.stack = in.stack[:n-1]
		}
	case "cm":
		if m, ok := matrixOperands(op); ok {
			in.gs.ctm = m.Multiply(in.gs.ctm)
		}
	case "g":
		if v, ok := op.Floats(); ok && len(v) == 1 {
			in.gs.fill = layout.ColorFromFloats(v[0], v[0], v[0])
		}
	case "rg":
		if v, ok := op.Floats(); ok && len(v) == 3 {
			in.gs.fill = layout.ColorFromFloats(v[0], v[1], v[2])
		}
	case "k":
		if v, ok := op.Floats(); ok && len(v) == 4 {
			in.gs.fill = cmykToColor(v)
		}
	case "sc", "scn":
		if v, ok := op.Floats(); ok {
			switch len(v) {
			case 1:
				in.gs.fill = layout.ColorFromFloats(v[0], v[0], v[0])
			case 3:
				in.gs.fill = layout.ColorFromFloats(v[0], v[1], v[2])
			case 4:
				in.gs.fill = cmykToColor(v)
			}
		}
	case "BT":
		ts.tm, ts.tlm = Identity(), Identity()
	case "Tf":
		if name, ok := op.Name(0); ok {
			ts.font = name
		}
		if v, ok := op.Float(1); ok {
			ts.size = v
		}
	case "Tc":
		ts.charSpace, _ = op.Float(0)
	case "Tw":
		ts.wordSpace, _ = op.Float(0)
	case "Tz":
		if v, ok := op.Float(0); ok {
			ts.scale = v / 100
		}
	case "TL":
		ts.leading, _ = op.Float(0)
	case "Ts":
		ts.rise, _ = op.Float(0)
	case "Td":
		tx, _ := op.Float(0)
		ty, _ := op.Float(1)
		in.moveLine(tx, ty)
	case "TD":
		tx, _ := op.Float(0)
		ty, _ := op.Float(1)
		ts.leading = -ty
		in.moveLine(tx, ty)
	case "Tm":
		if m, ok := matrixOperands(op); ok {
			ts.tm, ts.tlm = m, m
		}
	case "T*":
		in.moveLine(0, -ts.leading)
	case "Tj":
		if len(op.Operands) > 0 {
			in.show(i, op, [][]Token{{op.Operands[0]}})
		}
	case "'":
		in.moveLine(0, -ts.leading)
		if len(op.Operands) > 0 {
			in.show(i, op, [][]Token{{op.Operands[0]}})
		}
	case "\"":
		if len(op.Operands) == 3 {
			ts.wordSpace, _ = op.Float(0)
			ts.charSpace, _ = op.Float(1)
			in.moveLine(0, -ts.leading)
			in.show(i, op, [][]Token{{op.Operands[2]}})
		}
	case "TJ":
		in.show(i, op, [][]Token{op.Operands})
	}
}

func (in *textInterpreter) moveLine(tx, ty float64) {
	in.ts.tlm = Translate(tx, ty).Multiply(in.ts.tlm)
	in.ts.tm = in.ts.tlm
}

// show 记录绘制位置并按字形宽度推进文本矩阵
func (in *textInterpreter) show(i int, op Operation, groups [][]Token) {
	ts := &in.ts
	trm := ts.tm.Multiply(in.gs.ctm)
	ox, oy := trm.Apply(0, ts.rise)
	px, py := trm.Apply(0.25*ts.size*ts.scale, ts.rise+0.3*ts.size)
	record := TextShow{
		Op:       i,
		Font:     ts.font,
		Size:     math.Abs(ts.size) * trm.VerticalScale(),
		OriginX:  ox,
		OriginY:  oy,
		ProbeX:   px,
		ProbeY:   py,
		Color:    in.gs.fill,
		Operator: op.Operator,
	}

	metric := in.metrics[ts.font]
	moved := 0.0
	for _, group := range groups {
		for _, tok := range group {
			switch tok.Kind {
			case TokenNumber:
				v, _ := strconv.ParseFloat(tok.Raw, 64)
				tx := -v / 1000 * ts.size * ts.scale
				in.advance(tx)
				moved += tx
			case TokenString, TokenHexString:
				codes, err := DecodeString(tok)
				if err != nil {
					continue
				}
				record.Codes = append(record.Codes, codes...)
				tx := in.stringAdvance(metric, codes)
				in.advance(tx)
				moved += tx
			}
		}
	}
	if unit := ts.size * ts.scale; unit != 0 {
		record.Shift = -moved * 1000 / unit
	}
	end := ts.tm.Multiply(in.gs.ctm)
	record.EndX, record.EndY = end.Apply(0, ts.rise)
	in.shows = append(in.shows, record)
}

func (in *textInterpreter) advance(tx float64) {
	in.ts.tm = Translate(tx, 0).Multiply(in.ts.tm)
}

func (in *textInterpreter) stringAdvance(metric *fontMetric, codes []byte) float64 {
	ts := in.ts
	step := 1
	if metric != nil && metric.composite {
		step = 2
	}
	total := 0.0
	for j := 0; j+step <= len(codes); j += step {
		code := int(codes[j])
		if step == 2 {
			code = code<<8 | int(codes[j+1])
		}
		w := metric.advance(code) / 1000 * ts.size
		w += ts.charSpace
		if step == 1 && code == 32 {
			w += ts.wordSpace
		}
		total += w * ts.scale
	}
	return total
}

func matrixOperands(op Operation) (Matrix, bool) {
	v, ok := op.Floats()
	if !ok || len(v) != 6 {
		return Matrix{}, false
	}
	return Matrix{A: v[0], B: v[1], C: v[2], D: v[3], E: v[4], F: v[5]}, true
}

func cmykToColor(v []float64) layout.Color {
	return layout.ColorFromFloats(
		(1-v[0])*(1-v[3]),
		(1-v[1])*(1-v[3]),
		(1-v[2])*(1-v[3]),
	)
}
