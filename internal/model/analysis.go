package model

// Priority is the follow-up tier derived from a potential score.
// Values are kept in Indonesian to match the labels the sales team already uses.
type Priority string

const (
	PriorityHigh   Priority = "Tinggi"
	PriorityMedium Priority = "Sedang"
	PriorityLow    Priority = "Rendah"
)

// Priorities lists every tier from highest to lowest.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Rank orders tiers: higher is more urgent. Unknown values rank below Low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// AnalysisResult is the output of the scoring engine for one client.
type AnalysisResult struct {
	PotentialScore         int      `json:"potential_score"`
	Segmentation           string   `json:"segmentation"`
	Priority               Priority `json:"priority"`
	RecommendationCategory string   `json:"recommendation_category"`
}

// Summary aggregates a result set.
type Summary struct {
	Count           int              `json:"count"`
	AverageScore    float64          `json:"average_score"`
	CountByPriority map[Priority]int `json:"count_by_priority"`
}
