package rules

import (
	"errors"
	"testing"

	"github.com/open-sustainability/heron/internal/domain"
)

func compileProductRuleSet(t *testing.T, version string) *CompiledRuleSet {
	t.Helper()
	engine := newTestEngine(t)
	t.Cleanup(func() { engine.Close() })

	compiled, err := engine.Compile(productRuleSet(version))
	if err != nil {
		t.Fatalf("failed to compile rule set: %v", err)
	}
	return compiled
}

func productProfile(materials, packaging float64) *domain.AttributeProfile {
	return &domain.AttributeProfile{
		ID: "prod-001",
		Numeric: map[string]float64{
			"materialsScore": materials,
			"packagingScore": packaging,
		},
	}
}

func TestEvaluateScoreWeightedMean(t *testing.T) {
	compiled := compileProductRuleSet(t, "2025-01")

	// 90*0.6 + 75*0.4 = 84
	result, err := compiled.EvaluateScore(productProfile(90, 75))
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if result.OverallScore != 84 {
		t.Errorf("expected overall score 84, got %d", result.OverallScore)
	}
	if result.Tier != "B" {
		t.Errorf("expected tier B, got %s", result.Tier)
	}
	if result.CategoryScores["materials"] != 90 {
		t.Errorf("expected materials 90, got %d", result.CategoryScores["materials"])
	}
	if result.CategoryScores["packaging"] != 75 {
		t.Errorf("expected packaging 75, got %d", result.CategoryScores["packaging"])
	}
	if result.ProfileID != "prod-001" || result.RuleSetVersion != "2025-01" {
		t.Errorf("result not tagged with profile and version: %+v", result)
	}
}

func TestEvaluateScoreRoundsHalfUp(t *testing.T) {
	compiled := compileProductRuleSet(t, "2025-01")

	// 85*0.6 + 84*0.4 = 84.6 rounds to 85
	result, err := compiled.EvaluateScore(productProfile(85, 84))
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if result.OverallScore != 85 {
		t.Errorf("expected 84.6 to round to 85, got %d", result.OverallScore)
	}

	// 84*0.6 + 85.25*0.4 = 84.5 rounds up, not to even
	result, err = compiled.EvaluateScore(productProfile(84, 85.25))
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if result.OverallScore != 85 {
		t.Errorf("expected 84.5 to round up to 85, got %d", result.OverallScore)
	}
}

func TestEvaluateScoreClampsCategories(t *testing.T) {
	compiled := compileProductRuleSet(t, "2025-01")

	result, err := compiled.EvaluateScore(productProfile(150, -30))
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if result.CategoryScores["materials"] != 100 {
		t.Errorf("expected materials clamped to 100, got %d", result.CategoryScores["materials"])
	}
	if result.CategoryScores["packaging"] != 0 {
		t.Errorf("expected packaging clamped to 0, got %d", result.CategoryScores["packaging"])
	}
	// 100*0.6 + 0*0.4 = 60
	if result.OverallScore != 60 {
		t.Errorf("expected overall 60 from clamped categories, got %d", result.OverallScore)
	}
}

func TestEvaluateScoreMissingDeclaredAttribute(t *testing.T) {
	compiled := compileProductRuleSet(t, "2025-01")

	profile := &domain.AttributeProfile{
		ID:      "prod-002",
		Numeric: map[string]float64{"materialsScore": 90},
	}

	_, err := compiled.EvaluateScore(profile)
	var missing *domain.MissingAttributeError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingAttributeError, got %v", err)
	}
	if missing.Attribute != "packagingScore" {
		t.Errorf("expected missing packagingScore, got %q", missing.Attribute)
	}
}

func TestEvaluateScoreMissingUndeclaredAttribute(t *testing.T) {
	// The expression touches an attribute outside the requires list; the
	// evaluation error is still surfaced as a missing attribute.
	engine := newTestEngine(t)
	defer engine.Close()

	rs := productRuleSet("undeclared")
	rs.Categories[1].Requires = nil

	compiled, err := engine.Compile(rs)
	if err != nil {
		t.Fatalf("failed to compile rule set: %v", err)
	}

	profile := &domain.AttributeProfile{
		ID:      "prod-003",
		Numeric: map[string]float64{"materialsScore": 90},
	}

	_, err = compiled.EvaluateScore(profile)
	var missing *domain.MissingAttributeError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingAttributeError from evaluation, got %v", err)
	}
	if missing.Attribute != "packagingScore" {
		t.Errorf("expected missing packagingScore, got %q", missing.Attribute)
	}
}

func TestEvaluateScoreNilProfile(t *testing.T) {
	compiled := compileProductRuleSet(t, "2025-01")

	if _, err := compiled.EvaluateScore(nil); err == nil {
		t.Error("expected error for nil profile")
	}
}

func TestClassifyTierBoundaries(t *testing.T) {
	compiled := compileProductRuleSet(t, "2025-01")

	cases := []struct {
		score int
		tier  string
	}{
		{100, "A+"},
		{95, "A+"}, // boundary belongs to the higher tier
		{94, "A"},
		{90, "A"},
		{89, "B"},
		{80, "B"},
		{79, "C"},
		{70, "C"},
		{69, "D"},
		{0, "D"},
		{-5, "D"},   // clamped
		{150, "A+"}, // clamped
	}

	for _, tc := range cases {
		if got := compiled.ClassifyTier(tc.score); got != tc.tier {
			t.Errorf("score %d: expected tier %s, got %s", tc.score, tc.tier, got)
		}
	}
}

func TestScoreMonotonicWithBetterAttributes(t *testing.T) {
	compiled := compileProductRuleSet(t, "2025-01")

	prev := -1
	for _, materials := range []float64{20, 40, 60, 80, 100} {
		result, err := compiled.EvaluateScore(productProfile(materials, 50))
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if result.OverallScore < prev {
			t.Errorf("score decreased from %d to %d when materials improved", prev, result.OverallScore)
		}
		prev = result.OverallScore
	}
}

func TestEvaluateScoreDeterministic(t *testing.T) {
	compiled := compileProductRuleSet(t, "2025-01")
	profile := productProfile(88, 72)

	first, err := compiled.EvaluateScore(profile)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := compiled.EvaluateScore(profile)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if again.OverallScore != first.OverallScore || again.Tier != first.Tier {
			t.Fatalf("evaluation not deterministic: %+v vs %+v", first, again)
		}
	}
}
