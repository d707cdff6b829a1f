package layout

// ExpansionWarnRatio 膨胀率超过该值的单元需要调整版面
const ExpansionWarnRatio = 1.5

// Statistics 版面统计
type Statistics struct {
	TotalPages             int          `json:"total_pages"`
	TotalFragments         int          `json:"total_fragments"`
	TotalUnits             int          `json:"total_units"`
	TranslatedUnits        int          `json:"translated_units"`
	AvgExpansionRatio      float64      `json:"avg_expansion_ratio"`
	MaxExpansionRatio      float64      `json:"max_expansion_ratio"`
	UnitsNeedingAdjustment int          `json:"units_needing_adjustment"`
	PagesWithOverflowRisk  []int        `json:"pages_with_overflow_risk"`
	Adjustments            []Adjustment `json:"adjustments,omitempty"`
}

// Adjustment 膨胀率过高的单元及建议字号
type Adjustment struct {
	Page          int     `json:"page"`
	UnitID        string  `json:"unit_id"`
	Ratio         float64 `json:"ratio"`
	FontSize      float64 `json:"font_size"`
	SuggestedSize float64 `json:"suggested_size"`
}

// ComputeStatistics 统计译文膨胀情况
func ComputeStatistics(pages []PageLayout) Statistics {
	stats := Statistics{
		AvgExpansionRatio:     1.0,
		MaxExpansionRatio:     1.0,
		PagesWithOverflowRisk: []int{},
	}
	var ratios []float64
	for _, p := range pages {
		stats.TotalPages++
		stats.TotalFragments += len(p.Fragments)
		stats.TotalUnits += len(p.Units)
		risk := false
		for _, u := range p.Units {
			if !u.Translated || u.Replacement == "" {
				continue
			}
			stats.TranslatedUnits++
			ratio := u.ExpansionRatio()
			ratios = append(ratios, ratio)
			if ratio > ExpansionWarnRatio {
				stats.UnitsNeedingAdjustment++
				risk = true
				if len(u.Members) == 0 {
					continue
				}
				size := u.FirstMember().Font.Size
				stats.Adjustments = append(stats.Adjustments, Adjustment{
					Page:          p.Number,
					UnitID:        u.ID(),
					Ratio:         ratio,
					FontSize:      size,
					SuggestedSize: AdjustForExpansion(size, ratio),
				})
			}
		}
		if risk {
			stats.PagesWithOverflowRisk = append(stats.PagesWithOverflowRisk, p.Number)
		}
	}
	if len(ratios) > 0 {
		sum, peak := 0.0, ratios[0]
		for _, r := range ratios {
			sum += r
			if r > peak {
				peak = r
			}
		}
		stats.AvgExpansionRatio = sum / float64(len(ratios))
		stats.MaxExpansionRatio = peak
	}
	return stats
}
