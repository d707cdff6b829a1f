package replacer

import (
	"fmt"
	"sort"
	"sync"
)

// EventKind 降级事件类别
type EventKind string

const (
	// EventOverflow 最小字号下仍放不下
	EventOverflow EventKind = "overflow"
	// EventDegenerateRegion 放置区域宽或高不为正
	EventDegenerateRegion EventKind = "degenerate_region"
	// EventPaintFailure 绘制失败，区域已擦除但未写入译文
	EventPaintFailure EventKind = "paint_failure"
	// EventEraseFallback 无法删除文字对象，改用白色覆盖
	EventEraseFallback EventKind = "erase_fallback"
	// EventClipped 放置区域超出页面，已裁剪
	EventClipped EventKind = "clipped"
)

// DegradationEvent 一次降级记录
type DegradationEvent struct {
	Page      int       `json:"page"`
	UnitID    string    `json:"unit_id"`
	Start     int       `json:"start_index"`
	End       int       `json:"end_index"`
	Kind      EventKind `json:"kind"`
	Overflow  float64   `json:"overflow,omitempty"`
	FontSize  float64   `json:"font_size,omitempty"`
	EraseMode EraseMode `json:"erase_mode"`
	Detail    string    `json:"detail,omitempty"`
}

func (e DegradationEvent) String() string {
	switch e.Kind {
	case EventOverflow:
		if e.Detail != "" {
			return fmt.Sprintf("第 %d 页单元 %s 文本溢出: %s", e.Page, e.UnitID, e.Detail)
		}
		return fmt.Sprintf("第 %d 页单元 %s 文本溢出 %.1fpt", e.Page, e.UnitID, e.Overflow)
	case EventDegenerateRegion:
		return fmt.Sprintf("第 %d 页单元 %s 区域退化", e.Page, e.UnitID)
	case EventPaintFailure:
		return fmt.Sprintf("第 %d 页单元 %s 绘制失败: %s", e.Page, e.UnitID, e.Detail)
	case EventEraseFallback:
		return fmt.Sprintf("第 %d 页单元 %s 使用覆盖擦除", e.Page, e.UnitID)
	case EventClipped:
		return fmt.Sprintf("第 %d 页单元 %s 区域已裁剪到页面", e.Page, e.UnitID)
	default:
		return fmt.Sprintf("第 %d 页单元 %s %s", e.Page, e.UnitID, e.Kind)
	}
}

// UnitOutcome 单元处理结果，用于诊断
type UnitOutcome struct {
	Page      int       `json:"page"`
	UnitID    string    `json:"unit_id"`
	Skipped   bool      `json:"skipped"`
	EraseMode EraseMode `json:"erase_mode"`
	FontSize  float64   `json:"font_size,omitempty"`
	Fits      bool      `json:"fits"`
	Painted   bool      `json:"painted"`
	Font      string    `json:"font,omitempty"`
}

// journal 按页累积事件与结果，可被多个页面并发写入
type journal struct {
	mu       sync.RWMutex
	events   map[int][]DegradationEvent
	outcomes map[int][]UnitOutcome
}

func newJournal() *journal {
	return &journal{
		events:   make(map[int][]DegradationEvent),
		outcomes: make(map[int][]UnitOutcome),
	}
}

func (j *journal) record(e DegradationEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events[e.Page] = append(j.events[e.Page], e)
}

func (j *journal) outcome(o UnitOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes[o.Page] = append(j.outcomes[o.Page], o)
}

func (j *journal) reset(page int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.events, page)
	delete(j.outcomes, page)
}

func (j *journal) pageEvents(page int) []DegradationEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]DegradationEvent, len(j.events[page]))
	copy(out, j.events[page])
	return out
}

func (j *journal) pageOutcomes(page int) []UnitOutcome {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]UnitOutcome, len(j.outcomes[page]))
	copy(out, j.outcomes[page])
	return out
}

func (j *journal) allEvents() []DegradationEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	pages := make([]int, 0, len(j.events))
	for p := range j.events {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	var out []DegradationEvent
	for _, p := range pages {
		out = append(out, j.events[p]...)
	}
	return out
}

func (j *journal) allOutcomes() []UnitOutcome {
	j.mu.RLock()
	defer j.mu.RUnlock()
	pages := make([]int, 0, len(j.outcomes))
	for p := range j.outcomes {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	var out []UnitOutcome
	for _, p := range pages {
		out = append(out, j.outcomes[p]...)
	}
	return out
}
