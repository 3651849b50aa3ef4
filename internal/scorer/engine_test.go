package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/client-analyzer/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	return e
}

func baseRecord() model.ClientRecord {
	return model.ClientRecord{
		Name:             "Toko Maju",
		BusinessCategory: model.CategoryRetail,
		Location:         "Bandung",
	}
}

func TestScore_AlwaysInRange(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	ratings := []*float64{nil, model.Float64Ptr(0), model.Float64Ptr(2.5), model.Float64Ptr(5)}
	reviews := []*int{nil, model.IntPtr(0), model.IntPtr(50), model.IntPtr(1_000_000)}
	histories := []string{"", "pelanggan rutin, transaksi terakhir bulan ini", "tidak aktif sejak 2021"}
	locations := []string{"Jakarta Selatan, dekat mall", "Desa Sukamaju", "Unknown"}

	for _, c := range model.Categories {
		for _, rt := range ratings {
			for _, rv := range reviews {
				for _, h := range histories {
					for _, loc := range locations {
						r := model.ClientRecord{
							Name:               "X",
							BusinessCategory:   c,
							Location:           loc,
							Rating:             rt,
							ReviewCount:        rv,
							TransactionHistory: h,
						}
						got := e.Score(r)
						assert.GreaterOrEqual(t, got.PotentialScore, 0)
						assert.LessOrEqual(t, got.PotentialScore, 100)
						assert.Contains(t, model.Priorities, got.Priority)
						assert.Contains(t, recommendationLabels(), got.RecommendationCategory)
					}
				}
			}
		}
	}
}

func TestScore_RatingMonotonic(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	for _, c := range model.Categories {
		prev := -1
		for i := 0; i <= 50; i++ {
			r := baseRecord()
			r.BusinessCategory = c
			r.Rating = model.Float64Ptr(float64(i) / 10)
			r.ReviewCount = model.IntPtr(40)

			got := e.Score(r).PotentialScore
			assert.GreaterOrEqual(t, got, prev, "category %s rating %.1f", c, float64(i)/10)
			prev = got
		}
	}
}

func TestScore_Deterministic(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	r := baseRecord()
	r.Rating = model.Float64Ptr(3.7)
	r.ReviewCount = model.IntPtr(88)
	r.TransactionHistory = "Pembelian mingguan"

	assert.Equal(t, e.Score(r), e.Score(r))

	e2 := newTestEngine(t)
	assert.Equal(t, e.Score(r), e2.Score(r))
}

func TestPriority_TotalAndMonotonic(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	prev := model.PriorityLow.Rank()
	for s := 0; s <= 100; s++ {
		p := e.Priority(s)
		require.Contains(t, model.Priorities, p, "score %d", s)
		assert.GreaterOrEqual(t, p.Rank(), prev, "score %d", s)
		prev = p.Rank()
	}

	assert.Equal(t, model.PriorityLow, e.Priority(49))
	assert.Equal(t, model.PriorityMedium, e.Priority(50))
	assert.Equal(t, model.PriorityMedium, e.Priority(74))
	assert.Equal(t, model.PriorityHigh, e.Priority(75))
}

func TestScore_AbsentRatingBeatsZeroRating(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	absent := baseRecord()
	zero := baseRecord()
	zero.Rating = model.Float64Ptr(0)

	assert.Greater(t, e.Score(absent).PotentialScore, e.Score(zero).PotentialScore)
}

func TestReviewScore_Saturates(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	assert.InDelta(t, 50.0, e.reviewScore(nil), 0.001)
	assert.Zero(t, e.reviewScore(model.IntPtr(0)))
	assert.InDelta(t, 100.0, e.reviewScore(model.IntPtr(1000)), 0.001)
	assert.InDelta(t, 100.0, e.reviewScore(model.IntPtr(10_000)), 0.001)

	// Diminishing returns: the first 100 reviews count more than the next 100.
	first := e.reviewScore(model.IntPtr(100)) - e.reviewScore(model.IntPtr(0))
	second := e.reviewScore(model.IntPtr(200)) - e.reviewScore(model.IntPtr(100))
	assert.Greater(t, first, second)
}

func TestTransactionScore(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	tests := []struct {
		name    string
		history string
		want    float64
	}{
		{"absent is neutral", "", 50},
		{"blank is neutral", "   ", 50},
		{"presence only", "beli sekali", 60},
		{"frequency", "Pelanggan rutin", 80},
		{"frequency and recency", "order mingguan, terakhir kemarin", 95},
		{"inactive", "sudah tidak aktif", 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, e.transactionScore(tt.history), 0.001)
		})
	}
}

func TestLocationScore(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	assert.InDelta(t, 90.0, e.locationScore("JAKARTA Pusat"), 0.001)
	assert.InDelta(t, 40.0, e.locationScore("Desa Cibodas"), 0.001)
	assert.InDelta(t, 50.0, e.locationScore("Atlantis"), 0.001)
	// Best keyword wins.
	assert.InDelta(t, 90.0, e.locationScore("Mall Kota Malang"), 0.001)
}

func TestScore_RetailOutranksAutomotive(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	retail := model.ClientRecord{
		Name:             "Toko Sejahtera",
		BusinessCategory: model.CategoryRetail,
		Location:         "Surabaya",
		Rating:           model.Float64Ptr(4.5),
		ReviewCount:      model.IntPtr(120),
	}
	auto := model.ClientRecord{
		Name:             "Bengkel Jaya",
		BusinessCategory: model.CategoryAutomotive,
		Location:         "Surabaya",
		Rating:           model.Float64Ptr(2.0),
		ReviewCount:      model.IntPtr(3),
	}

	assert.Greater(t, e.Score(retail).PotentialScore, e.Score(auto).PotentialScore)
}

func TestSegmentation_DiffersByCategory(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Premium Digital", Segmentation(model.CategoryTechnology, BandPremium))
	assert.Equal(t, "Premium Culinary", Segmentation(model.CategoryFood, BandPremium))
	assert.NotEqual(t,
		Segmentation(model.CategoryRetail, BandEstablished),
		Segmentation(model.CategoryHealth, BandEstablished))
}

func TestRecommendation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RecImmediateOutreach, Recommendation(model.PriorityHigh, model.CategoryFood))
	assert.Equal(t, RecStrategicPartnership, Recommendation(model.PriorityHigh, model.CategoryTechnology))
	assert.Equal(t, RecNurture, Recommendation(model.PriorityMedium, model.CategoryServices))
	assert.Equal(t, RecMonitor, Recommendation(model.PriorityLow, model.CategoryRetail))
	assert.Equal(t, RecPeriodicCheckIn, Recommendation(model.PriorityLow, model.CategoryEducation))
}

func TestScore_CustomThresholds(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.HighThreshold = 95
	cfg.MediumThreshold = 90
	e, err := New(cfg)
	require.NoError(t, err)

	got := e.Score(baseRecord())
	assert.Equal(t, model.PriorityLow, got.Priority)
	assert.Equal(t, "Developing Retail", got.Segmentation)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.HighThreshold = 10
	_, err := New(cfg)
	assert.Error(t, err)
}

func recommendationLabels() []string {
	var labels []string
	for _, byKind := range recommendationTable {
		for _, l := range byKind {
			labels = append(labels, l)
		}
	}
	return labels
}
