package evaluator

import (
	"math"
	"testing"

	"github.com/pavelanni/aqs/internal/model"
)

func uniformBlooms(v float64) *model.BloomsScores {
	return &model.BloomsScores{Remember: v, Understand: v, Apply: v, Analyze: v, Evaluate: v, Create: v}
}

func TestDifficultyComponent(t *testing.T) {
	tests := []struct {
		name string
		s    model.DifficultyScores
		want float64
	}{
		{"all zero", model.DifficultyScores{}, 0},
		{"all max", model.DifficultyScores{ComplexityScore: 10, LanguageDifficultyScore: 10, CognitiveEffortScore: 10, CourseAlignmentScore: 10}, 100},
		{"neutral", model.DifficultyScores{ComplexityScore: 5, LanguageDifficultyScore: 5, CognitiveEffortScore: 5, CourseAlignmentScore: 5}, 50},
		{"mixed", model.DifficultyScores{ComplexityScore: 7, LanguageDifficultyScore: 6, CognitiveEffortScore: 8, CourseAlignmentScore: 7}, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DifficultyComponent(tt.s); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DifficultyComponent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTaxonomyComponent(t *testing.T) {
	if got := TaxonomyComponent(nil); got != 50 {
		t.Errorf("nil scores = %v, want 50", got)
	}
	if got := TaxonomyComponent(uniformBlooms(100)); got != 100 {
		t.Errorf("uniform 100 = %v, want exactly 100", got)
	}
	if got := TaxonomyComponent(uniformBlooms(50)); got != 50 {
		t.Errorf("uniform 50 = %v, want exactly 50", got)
	}
	if got := TaxonomyComponent(uniformBlooms(0)); got != 0 {
		t.Errorf("uniform 0 = %v, want 0", got)
	}

	// Higher levels weigh more: the same score on create beats remember.
	low := TaxonomyComponent(&model.BloomsScores{Remember: 100})
	high := TaxonomyComponent(&model.BloomsScores{Create: 100})
	if math.Abs(low-100/13.5) > 1e-9 {
		t.Errorf("remember only = %v, want %v", low, 100/13.5)
	}
	if high <= low {
		t.Errorf("create-only (%v) should exceed remember-only (%v)", high, low)
	}
}

func TestComposite(t *testing.T) {
	tests := []struct {
		name string
		c    model.ScoreComponents
		want float64
	}{
		{"linked", model.ScoreComponents{Difficulty: 70, Taxonomy: 60, CourseFit: 80}, 70.5},
		{"linked defaults", model.ScoreComponents{Difficulty: 50, Taxonomy: 50}, 30},
		{"standalone", model.ScoreComponents{Difficulty: 70, Taxonomy: 60, Standalone: true}, 64},
		{"standalone ignores fit", model.ScoreComponents{Difficulty: 50, Taxonomy: 50, CourseFit: 100, Standalone: true}, 50},
		{"clamped high", model.ScoreComponents{Difficulty: 500, Taxonomy: 500, CourseFit: 500}, 100},
		{"clamped low", model.ScoreComponents{Difficulty: -50, Taxonomy: -50, CourseFit: -50}, 0},
		{"nan", model.ScoreComponents{Difficulty: math.NaN()}, 0},
		{"all max", model.ScoreComponents{Difficulty: 100, Taxonomy: 100, CourseFit: 100}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Composite(tt.c); got != tt.want {
				t.Errorf("Composite(%+v) = %v, want %v", tt.c, got, tt.want)
			}
		})
	}
}

func TestTier(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, model.TierExcellent},
		{85, model.TierExcellent},
		{84.99, model.TierGood},
		{70, model.TierGood},
		{69.99, model.TierSatisfactory},
		{55, model.TierSatisfactory},
		{54.99, model.TierNeedsImprovement},
		{40, model.TierNeedsImprovement},
		{39.99, model.TierPoor},
		{0, model.TierPoor},
	}
	for _, tt := range tests {
		if got := Tier(tt.score); got != tt.want {
			t.Errorf("Tier(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestTierMonotonic(t *testing.T) {
	rank := map[string]int{
		model.TierPoor:             0,
		model.TierNeedsImprovement: 1,
		model.TierSatisfactory:     2,
		model.TierGood:             3,
		model.TierExcellent:        4,
	}
	prev := -1
	for s := 0.0; s <= 100; s += 0.25 {
		r := rank[Tier(s)]
		if r < prev {
			t.Fatalf("tier dropped at %v", s)
		}
		prev = r
	}
}

func TestMismatchGap(t *testing.T) {
	if got := mismatchGap(nil); got != 0 {
		t.Errorf("nil gap = %v, want 0", got)
	}
	v := 65.0
	if got := mismatchGap(&v); got != 35 {
		t.Errorf("gap = %v, want 35", got)
	}
}

func TestScoringScenarios(t *testing.T) {
	tests := []struct {
		name           string
		difficulty     model.DifficultyScores
		blooms         *model.BloomsScores
		courseFit      float64
		standalone     bool
		wantDifficulty float64
		wantTaxonomy   float64
		wantAQS        float64
		wantTier       string
	}{
		{
			name:           "course-linked",
			difficulty:     model.DifficultyScores{ComplexityScore: 8, LanguageDifficultyScore: 6, CognitiveEffortScore: 7, CourseAlignmentScore: 9},
			blooms:         uniformBlooms(50),
			courseFit:      70,
			wantDifficulty: 75,
			wantTaxonomy:   50,
			wantAQS:        64.25,
			wantTier:       model.TierSatisfactory,
		},
		{
			name:           "standalone below good boundary",
			difficulty:     model.DifficultyScores{ComplexityScore: 8, LanguageDifficultyScore: 8, CognitiveEffortScore: 8, CourseAlignmentScore: 8},
			blooms:         uniformBlooms(60),
			standalone:     true,
			wantDifficulty: 80,
			wantTaxonomy:   60,
			wantAQS:        68,
			wantTier:       model.TierSatisfactory,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DifficultyComponent(tt.difficulty)
			tx := TaxonomyComponent(tt.blooms)
			if math.Abs(d-tt.wantDifficulty) > 1e-9 || math.Abs(tx-tt.wantTaxonomy) > 1e-9 {
				t.Errorf("components = %v, %v, want %v, %v", d, tx, tt.wantDifficulty, tt.wantTaxonomy)
			}
			aqs := Composite(model.ScoreComponents{Difficulty: d, Taxonomy: tx, CourseFit: tt.courseFit, Standalone: tt.standalone})
			if aqs != tt.wantAQS {
				t.Errorf("Composite() = %v, want %v", aqs, tt.wantAQS)
			}
			if got := Tier(aqs); got != tt.wantTier {
				t.Errorf("Tier(%v) = %q, want %q", aqs, got, tt.wantTier)
			}
		})
	}
}
