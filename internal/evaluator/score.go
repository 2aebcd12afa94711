package evaluator

import (
	"math"

	"github.com/pavelanni/aqs/internal/model"
)

// Taxonomy weights, from lowest to highest cognitive level.
var taxonomyWeights = [...]struct {
	level  string
	weight float64
}{
	{"remember", 1.0},
	{"understand", 1.5},
	{"apply", 2.0},
	{"analyze", 2.5},
	{"evaluate", 3.0},
	{"create", 3.5},
}

// Composite weights.
const (
	standaloneDifficultyWeight = 0.40
	standaloneTaxonomyWeight   = 0.60

	linkedDifficultyWeight = 0.25
	linkedTaxonomyWeight   = 0.35
	linkedCourseFitWeight  = 0.40

	defaultTaxonomyComponent = 50.0
)

// Tier thresholds are inclusive lower bounds, checked top-down.
var tierLadder = [...]struct {
	min  float64
	tier string
}{
	{85, model.TierExcellent},
	{70, model.TierGood},
	{55, model.TierSatisfactory},
	{40, model.TierNeedsImprovement},
}

// DifficultyComponent is the mean of the four 0-10 sub-scores scaled to 0-100.
func DifficultyComponent(s model.DifficultyScores) float64 {
	sum := s.ComplexityScore + s.LanguageDifficultyScore + s.CognitiveEffortScore + s.CourseAlignmentScore
	return sum / 4 * 10
}

// TaxonomyComponent is the weighted mean of the six 0-100 category scores,
// so a response scoring 100 in every category yields exactly 100. A nil set
// means the service sent no taxonomy scores and yields 50.
func TaxonomyComponent(s *model.BloomsScores) float64 {
	if s == nil {
		return defaultTaxonomyComponent
	}
	scores := [...]float64{s.Remember, s.Understand, s.Apply, s.Analyze, s.Evaluate, s.Create}
	var weighted, total float64
	for i, w := range taxonomyWeights {
		weighted += scores[i] * w.weight
		total += w.weight
	}
	return weighted / total
}

// Composite combines the components into the AQS score, clamped to [0, 100]
// and rounded to two decimals.
func Composite(c model.ScoreComponents) float64 {
	var v float64
	if c.Standalone {
		v = standaloneDifficultyWeight*c.Difficulty + standaloneTaxonomyWeight*c.Taxonomy
	} else {
		v = linkedDifficultyWeight*c.Difficulty + linkedTaxonomyWeight*c.Taxonomy + linkedCourseFitWeight*c.CourseFit
	}
	return round2(clamp(v, 0, 100))
}

// Tier maps a composite score onto the quality ladder.
func Tier(score float64) string {
	for _, t := range tierLadder {
		if score >= t.min {
			return t.tier
		}
	}
	return model.TierPoor
}

// mismatchGap returns how far the difficulty appropriateness score falls
// short of full alignment. A missing score counts as fully aligned.
func mismatchGap(appropriateness *float64) float64 {
	if appropriateness == nil {
		return 0
	}
	return 100 - *appropriateness
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
