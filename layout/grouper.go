package layout

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidGroupRange 外部分组引用了非法或重叠的片段序号
var ErrInvalidGroupRange = errors.New("非法的分组范围")

// GroupRange 外部提供的分组 (start, end, 译文)
type GroupRange struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// GroupResult 分组结果
type GroupResult struct {
	Units    []Unit
	Rejected []error // 每个被拒绝的分组一条，均包装 ErrInvalidGroupRange
}

// sortedFragments 返回按序号排序的副本
func sortedFragments(fragments []Fragment) []Fragment {
	out := make([]Fragment, len(fragments))
	copy(out, fragments)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// GroupSingletons 回退分组：每个片段单独成为一个单元
func GroupSingletons(fragments []Fragment) []Unit {
	frags := sortedFragments(fragments)
	units := make([]Unit, 0, len(frags))
	for i := range frags {
		units = append(units, newUnit(frags[i:i+1]))
	}
	return units
}

// GroupExternal 校验外部分组并转换为单元
//
// 起止颠倒、越界或与其他分组重叠的范围整体拒绝，涉及的片段回退为单片段单元；
// 未被任何合法分组覆盖的片段同样成为单片段单元。结果按起始序号升序排列，
// 且恰好覆盖每个片段一次。
func GroupExternal(fragments []Fragment, ranges []GroupRange) GroupResult {
	frags := sortedFragments(fragments)
	pos := make(map[int]int, len(frags))
	for i, f := range frags {
		pos[f.Index] = i
	}

	var result GroupResult
	reject := func(r GroupRange, reason string) {
		result.Rejected = append(result.Rejected,
			fmt.Errorf("%w: [%d, %d] %s", ErrInvalidGroupRange, r.Start, r.End, reason))
	}

	// 第一遍：结构校验
	candidates := make([]GroupRange, 0, len(ranges))
	for _, r := range ranges {
		if r.Start > r.End {
			reject(r, "起始序号大于结束序号")
			continue
		}
		if !coversExisting(pos, r) {
			reject(r, "序号超出片段范围")
			continue
		}
		candidates = append(candidates, r)
	}

	// 第二遍：统计每个序号被认领的次数，重叠的分组全部拒绝
	claims := make(map[int]int)
	for _, r := range candidates {
		for idx := r.Start; idx <= r.End; idx++ {
			claims[idx]++
		}
	}
	accepted := make([]GroupRange, 0, len(candidates))
	for _, r := range candidates {
		overlapped := false
		for idx := r.Start; idx <= r.End; idx++ {
			if claims[idx] > 1 {
				overlapped = true
				break
			}
		}
		if overlapped {
			reject(r, "与其他分组重叠")
			continue
		}
		accepted = append(accepted, r)
	}

	owner := make(map[int]GroupRange, len(frags))
	for _, r := range accepted {
		for idx := r.Start; idx <= r.End; idx++ {
			owner[idx] = r
		}
	}

	for i := 0; i < len(frags); {
		r, ok := owner[frags[i].Index]
		if !ok {
			result.Units = append(result.Units, newUnit(frags[i:i+1]))
			i++
			continue
		}
		j := pos[r.End] + 1
		result.Units = append(result.Units, newUnit(frags[i:j]).WithReplacement(r.Text))
		i = j
	}
	return result
}

// coversExisting 范围内每个序号都必须对应一个片段
func coversExisting(pos map[int]int, r GroupRange) bool {
	if r.Start < 0 {
		return false
	}
	for idx := r.Start; idx <= r.End; idx++ {
		if _, ok := pos[idx]; !ok {
			return false
		}
	}
	return true
}

// AttachSingles 为尚无译文的单片段单元附加按序号提供的译文
func AttachSingles(units []Unit, singles map[int]string) []Unit {
	out := make([]Unit, len(units))
	for i, u := range units {
		out[i] = u
		if u.Translated || u.StartIndex != u.EndIndex {
			continue
		}
		if text, ok := singles[u.StartIndex]; ok {
			out[i] = u.WithReplacement(text)
		}
	}
	return out
}
