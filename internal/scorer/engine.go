package scorer

import (
	"math"
	"sort"
	"strings"

	"github.com/sells-group/client-analyzer/internal/config"
	"github.com/sells-group/client-analyzer/internal/model"
)

// Band is the score band a potential score falls into. Bands share the
// priority thresholds.
type Band string

const (
	BandPremium     Band = "Premium"
	BandEstablished Band = "Established"
	BandDeveloping  Band = "Developing"
)

// Recommendation labels. The set is closed.
const (
	RecImmediateOutreach    = "Immediate Outreach"
	RecStrategicPartnership = "Strategic Partnership"
	RecPromotionalCampaign  = "Promotional Campaign"
	RecNurture              = "Nurture"
	RecMonitor              = "Monitor"
	RecPeriodicCheckIn      = "Periodic Check-in"
)

// segmentGroups maps each category to the market group used in segmentation labels.
var segmentGroups = map[model.BusinessCategory]string{
	model.CategoryRetail:     "Retail",
	model.CategoryFood:       "Culinary",
	model.CategoryFashion:    "Lifestyle",
	model.CategoryTechnology: "Digital",
	model.CategoryServices:   "Services",
	model.CategoryHealth:     "Wellness",
	model.CategoryEducation:  "Learning",
	model.CategoryAutomotive: "Mobility",
}

// consumerCategories sell to walk-in customers; the rest are relationship sales.
var consumerCategories = map[model.BusinessCategory]bool{
	model.CategoryRetail:  true,
	model.CategoryFood:    true,
	model.CategoryFashion: true,
}

// recommendationTable is keyed by priority, then by consumer (true) or relationship (false).
var recommendationTable = map[model.Priority]map[bool]string{
	model.PriorityHigh:   {true: RecImmediateOutreach, false: RecStrategicPartnership},
	model.PriorityMedium: {true: RecPromotionalCampaign, false: RecNurture},
	model.PriorityLow:    {true: RecMonitor, false: RecPeriodicCheckIn},
}

// Breakdown exposes the sub-scores behind a potential score.
type Breakdown struct {
	Rating      float64 `json:"rating"`
	Reviews     float64 `json:"reviews"`
	Location    float64 `json:"location"`
	Transaction float64 `json:"transaction"`
	Multiplier  float64 `json:"multiplier"`
	Raw         float64 `json:"raw"`
}

// Engine scores client records against a resolved policy. It is safe for
// concurrent use; Score has no side effects.
type Engine struct {
	cfg          config.ScoringConfig
	locationKeys []string
}

// New validates cfg and returns an Engine. Pass the output of ResolveConfig
// or DefaultConfig.
func New(cfg config.ScoringConfig) (*Engine, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(cfg.LocationScores))
	for k := range cfg.LocationScores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &Engine{cfg: cfg, locationKeys: keys}, nil
}

// Config returns the policy the engine was built with.
func (e *Engine) Config() config.ScoringConfig {
	return e.cfg
}

// Score computes the analysis for one validated record.
func (e *Engine) Score(r model.ClientRecord) model.AnalysisResult {
	b := e.Breakdown(r)
	score := int(math.Round(clamp(b.Raw, 0, 100)))
	priority := e.Priority(score)

	return model.AnalysisResult{
		PotentialScore:         score,
		Segmentation:           Segmentation(r.BusinessCategory, e.Band(score)),
		Priority:               priority,
		RecommendationCategory: Recommendation(priority, r.BusinessCategory),
	}
}

// Breakdown computes the weighted sub-scores for r before clamping.
func (e *Engine) Breakdown(r model.ClientRecord) Breakdown {
	b := Breakdown{
		Rating:      e.ratingScore(r.Rating),
		Reviews:     e.reviewScore(r.ReviewCount),
		Location:    e.locationScore(r.Location),
		Transaction: e.transactionScore(r.TransactionHistory),
		Multiplier:  e.multiplier(r.BusinessCategory),
	}
	weighted := e.cfg.RatingWeight*b.Rating +
		e.cfg.ReviewWeight*b.Reviews +
		e.cfg.LocationWeight*b.Location +
		e.cfg.TransactionWeight*b.Transaction
	b.Raw = weighted * b.Multiplier
	return b
}

// Priority maps a score to its tier. Every integer maps to exactly one tier.
func (e *Engine) Priority(score int) model.Priority {
	switch {
	case score >= e.cfg.HighThreshold:
		return model.PriorityHigh
	case score >= e.cfg.MediumThreshold:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// Band maps a score to its segmentation band.
func (e *Engine) Band(score int) Band {
	switch e.Priority(score) {
	case model.PriorityHigh:
		return BandPremium
	case model.PriorityMedium:
		return BandEstablished
	default:
		return BandDeveloping
	}
}

// Segmentation combines a band and the category's market group, e.g. "Premium Digital".
func Segmentation(c model.BusinessCategory, band Band) string {
	group, ok := segmentGroups[c]
	if !ok {
		group = "General"
	}
	return string(band) + " " + group
}

// Recommendation selects the next action for a priority tier and category.
func Recommendation(p model.Priority, c model.BusinessCategory) string {
	row, ok := recommendationTable[p]
	if !ok {
		row = recommendationTable[model.PriorityLow]
	}
	return row[consumerCategories[c]]
}

func (e *Engine) ratingScore(rating *float64) float64 {
	v := e.cfg.NeutralRating
	if rating != nil {
		v = *rating
	}
	return clamp(v, 0, 5) / 5 * 100
}

// reviewScore grows logarithmically and saturates at ReviewSaturation reviews.
func (e *Engine) reviewScore(count *int) float64 {
	if count == nil {
		return e.cfg.NeutralReviewScore
	}
	if *count <= 0 {
		return 0
	}
	s := 100 * math.Log1p(float64(*count)) / math.Log1p(float64(e.cfg.ReviewSaturation))
	return math.Min(s, 100)
}

// locationScore takes the best matching city or keyword in the location text.
func (e *Engine) locationScore(location string) float64 {
	loc := strings.ToLower(location)
	best, found := 0.0, false
	for _, k := range e.locationKeys {
		if strings.Contains(loc, k) {
			if v := e.cfg.LocationScores[k]; !found || v > best {
				best = v
			}
			found = true
		}
	}
	if !found {
		return e.cfg.NeutralLocationScore
	}
	return best
}

func (e *Engine) transactionScore(history string) float64 {
	h := strings.ToLower(strings.TrimSpace(history))
	if h == "" {
		return e.cfg.NeutralTransactionScore
	}

	s := e.cfg.TransactionBaseScore
	if containsAny(h, e.cfg.FrequencyKeywords) {
		s += e.cfg.FrequencyBonus
	}
	if containsAny(h, e.cfg.RecencyKeywords) {
		s += e.cfg.RecencyBonus
	}
	if containsAny(h, e.cfg.InactivityKeywords) {
		s -= e.cfg.InactivityPenalty
	}
	return clamp(s, 0, 100)
}

func (e *Engine) multiplier(c model.BusinessCategory) float64 {
	if m, ok := e.cfg.CategoryMultipliers[strings.ToLower(string(c))]; ok {
		return m
	}
	return 1
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
