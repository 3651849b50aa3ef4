// Package scorer implements the client potential scoring engine.
package scorer

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/client-analyzer/internal/config"
)

// DefaultConfig returns the built-in scoring policy.
// Weights sum to 1. These constants are a policy choice, not derived from data.
func DefaultConfig() config.ScoringConfig {
	return config.ScoringConfig{
		// Weights (sum = 1).
		RatingWeight:      0.35,
		ReviewWeight:      0.25,
		LocationWeight:    0.20,
		TransactionWeight: 0.20,

		// Neutral substitutes: midpoint rating, half-scale sub-scores.
		NeutralRating:           2.5,
		NeutralReviewScore:      50,
		NeutralLocationScore:    50,
		NeutralTransactionScore: 50,

		ReviewSaturation: 1000,

		TransactionBaseScore: 60,
		FrequencyBonus:       20,
		RecencyBonus:         15,
		InactivityPenalty:    30,
		FrequencyKeywords: []string{
			"rutin", "setiap", "harian", "mingguan", "bulanan", "sering", "langganan", "berulang",
			"daily", "weekly", "monthly", "regular", "frequent", "repeat", "subscription",
		},
		RecencyKeywords: []string{
			"baru", "terakhir", "bulan ini", "minggu ini", "kemarin",
			"recent", "recently", "last week", "last month", "this month", "this week",
		},
		InactivityKeywords: []string{
			"jarang", "tidak aktif", "berhenti", "tutup",
			"inactive", "rarely", "stopped", "churned", "dormant",
		},

		HighThreshold:   75,
		MediumThreshold: 50,

		CategoryMultipliers: map[string]float64{
			"technology": 1.15,
			"health":     1.10,
			"education":  1.05,
			"fashion":    1.05,
			"food":       1.00,
			"retail":     0.95,
			"automotive": 0.95,
			"services":   0.90,
		},
		LocationScores: map[string]float64{
			"jakarta":     90,
			"surabaya":    80,
			"bandung":     80,
			"yogyakarta":  70,
			"semarang":    70,
			"medan":       70,
			"denpasar":    70,
			"makassar":    65,
			"malang":      60,
			"bogor":       60,
			"tangerang":   60,
			"bekasi":      60,
			"depok":       55,
			"mall":        90,
			"pusat":       80,
			"strategis":   80,
			"komersial":   80,
			"perkantoran": 75,
			"perumahan":   60,
			"desa":        40,
			"pinggiran":   40,
		},
	}
}

// ResolveConfig builds the effective policy: defaults, then the policy file
// (if any), then the non-zero inline settings. The result is validated.
func ResolveConfig(c config.ScoringConfig) (config.ScoringConfig, error) {
	base := DefaultConfig()
	if c.PolicyFile != "" {
		p, err := LoadPolicy(c.PolicyFile)
		if err != nil {
			return config.ScoringConfig{}, err
		}
		base = p
		base.PolicyFile = c.PolicyFile
	}
	overlay(&base, c)
	if err := ValidateConfig(base); err != nil {
		return config.ScoringConfig{}, err
	}
	return base, nil
}

// LoadPolicy reads a scoring policy from a YAML file with a top-level
// "scoring" key. Fields absent from the file keep their default values.
func LoadPolicy(path string) (config.ScoringConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.ScoringConfig{}, eris.Wrapf(err, "scorer: read policy %s", path)
	}

	wrapper := struct {
		Scoring config.ScoringConfig `yaml:"scoring"`
	}{Scoring: DefaultConfig()}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return config.ScoringConfig{}, eris.Wrap(err, "scorer: parse policy")
	}

	p := wrapper.Scoring
	p.CategoryMultipliers = lowerKeys(p.CategoryMultipliers)
	p.LocationScores = lowerKeys(p.LocationScores)
	return p, nil
}

// WeightSum returns the sum of all sub-score weights.
func WeightSum(c config.ScoringConfig) float64 {
	return c.RatingWeight + c.ReviewWeight + c.LocationWeight + c.TransactionWeight
}

// ValidateConfig checks that a ScoringConfig is internally consistent.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string

	weights := map[string]float64{
		"rating_weight":      c.RatingWeight,
		"review_weight":      c.ReviewWeight,
		"location_weight":    c.LocationWeight,
		"transaction_weight": c.TransactionWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	if c.RatingWeight <= 0 {
		errs = append(errs, "rating_weight must be > 0")
	}
	if sum := WeightSum(c); math.Abs(sum-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.3f", sum))
	}

	if c.NeutralRating < 0 || c.NeutralRating > 5 {
		errs = append(errs, "neutral_rating must be between 0 and 5")
	}
	for name, v := range map[string]float64{
		"neutral_review_score":      c.NeutralReviewScore,
		"neutral_location_score":    c.NeutralLocationScore,
		"neutral_transaction_score": c.NeutralTransactionScore,
		"transaction_base_score":    c.TransactionBaseScore,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 100", name))
		}
	}
	if c.ReviewSaturation < 1 {
		errs = append(errs, "review_saturation must be >= 1")
	}
	if c.FrequencyBonus < 0 || c.RecencyBonus < 0 || c.InactivityPenalty < 0 {
		errs = append(errs, "transaction bonuses and penalty must be >= 0")
	}

	if c.MediumThreshold <= 0 || c.HighThreshold <= c.MediumThreshold || c.HighThreshold > 100 {
		errs = append(errs, fmt.Sprintf("thresholds must satisfy 0 < medium < high <= 100 (got medium=%d high=%d)",
			c.MediumThreshold, c.HighThreshold))
	}

	for k, m := range c.CategoryMultipliers {
		if m <= 0 {
			errs = append(errs, fmt.Sprintf("category multiplier %s must be > 0", k))
		}
	}
	for k, v := range c.LocationScores {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("location score %s must be between 0 and 100", k))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// overlay copies the non-zero fields of src onto dst. Map entries are merged.
func overlay(dst *config.ScoringConfig, src config.ScoringConfig) {
	setF := func(d *float64, v float64) {
		if v != 0 {
			*d = v
		}
	}
	setI := func(d *int, v int) {
		if v != 0 {
			*d = v
		}
	}
	setS := func(d *[]string, v []string) {
		if len(v) > 0 {
			*d = v
		}
	}

	setF(&dst.RatingWeight, src.RatingWeight)
	setF(&dst.ReviewWeight, src.ReviewWeight)
	setF(&dst.LocationWeight, src.LocationWeight)
	setF(&dst.TransactionWeight, src.TransactionWeight)
	setF(&dst.NeutralRating, src.NeutralRating)
	setF(&dst.NeutralReviewScore, src.NeutralReviewScore)
	setF(&dst.NeutralLocationScore, src.NeutralLocationScore)
	setF(&dst.NeutralTransactionScore, src.NeutralTransactionScore)
	setI(&dst.ReviewSaturation, src.ReviewSaturation)
	setF(&dst.TransactionBaseScore, src.TransactionBaseScore)
	setF(&dst.FrequencyBonus, src.FrequencyBonus)
	setF(&dst.RecencyBonus, src.RecencyBonus)
	setF(&dst.InactivityPenalty, src.InactivityPenalty)
	setS(&dst.FrequencyKeywords, src.FrequencyKeywords)
	setS(&dst.RecencyKeywords, src.RecencyKeywords)
	setS(&dst.InactivityKeywords, src.InactivityKeywords)
	setI(&dst.HighThreshold, src.HighThreshold)
	setI(&dst.MediumThreshold, src.MediumThreshold)

	if dst.CategoryMultipliers == nil {
		dst.CategoryMultipliers = map[string]float64{}
	}
	for k, v := range src.CategoryMultipliers {
		dst.CategoryMultipliers[strings.ToLower(k)] = v
	}
	if dst.LocationScores == nil {
		dst.LocationScores = map[string]float64{}
	}
	for k, v := range src.LocationScores {
		dst.LocationScores[strings.ToLower(k)] = v
	}
}

func lowerKeys(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
