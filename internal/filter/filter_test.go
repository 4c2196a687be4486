package filter

import (
	"fmt"
	"testing"

	"commentguard/internal/perspective"
)

func resultWithScores(t *testing.T, scores map[perspective.Model]float64) *perspective.AnalysisResult {
	t.Helper()
	attrs := ""
	for m, score := range scores {
		if attrs != "" {
			attrs += ","
		}
		attrs += fmt.Sprintf(`"%s":{"summaryScore":{"value":%v}}`, string(m), score)
	}
	payload := fmt.Sprintf(`{"attributeScores":{%s}}`, attrs)
	requested := make([]perspective.Model, 0, len(scores))
	for m := range scores {
		requested = append(requested, m)
	}
	result, err := perspective.ParseAnalysisResult("body", requested, []byte(payload))
	if err != nil {
		t.Fatalf("ParseAnalysisResult: %v", err)
	}
	return result
}

func TestThresholdOfDefault(t *testing.T) {
	f := New()
	if got := f.ThresholdOf(perspective.ModelToxicity); got != 1.0 {
		t.Fatalf("expected default threshold 1.0, got %v", got)
	}
	f.SetThreshold(perspective.ModelToxicity, 0.7)
	if got := f.ThresholdOf(perspective.ModelToxicity); got != 0.7 {
		t.Fatalf("expected 0.7, got %v", got)
	}
	f.SetThreshold(perspective.ModelToxicity, 0.9)
	if got := f.ThresholdOf(perspective.ModelToxicity); got != 0.9 {
		t.Fatalf("last write must win, got %v", got)
	}
	f.ClearThreshold(perspective.ModelToxicity)
	if got := f.ThresholdOf(perspective.ModelToxicity); got != 1.0 {
		t.Fatalf("cleared threshold must fall back to 1.0, got %v", got)
	}
}

func TestClearAll(t *testing.T) {
	f := New()
	f.SetThreshold(perspective.ModelToxicity, 0.5)
	f.SetThreshold(perspective.ModelSpam, 0.5)
	f.ClearAll()
	if len(f.Thresholds()) != 0 {
		t.Fatalf("expected empty threshold set after ClearAll")
	}
	result := resultWithScores(t, map[perspective.Model]float64{perspective.ModelToxicity: 0.99})
	if f.ShouldFilter(result) {
		t.Fatalf("no thresholds configured, nothing may trigger")
	}
}

func TestShouldFilterTriggersOnHighestScore(t *testing.T) {
	f := New()
	f.SetThreshold(perspective.ModelToxicity, 0.8)
	f.SetThreshold(perspective.ModelSpam, 0.9)

	result := resultWithScores(t, map[perspective.Model]float64{
		perspective.ModelToxicity: 0.85,
		perspective.ModelSpam:     0.5,
	})
	if !f.ShouldFilter(result) {
		t.Fatalf("expected filter to trigger")
	}
	reason, ok := f.LastReason()
	if !ok || reason != perspective.ModelToxicity {
		t.Fatalf("expected reason TOXICITY, got %v (ok=%v)", reason, ok)
	}
}

func TestShouldFilterNonTriggerKeepsReason(t *testing.T) {
	f := New()
	f.SetThreshold(perspective.ModelToxicity, 0.8)
	f.SetThreshold(perspective.ModelSpam, 0.9)

	if _, ok := f.LastReason(); ok {
		t.Fatalf("reason must be unset before the first trigger")
	}

	low := resultWithScores(t, map[perspective.Model]float64{
		perspective.ModelToxicity: 0.5,
		perspective.ModelSpam:     0.5,
	})
	if f.ShouldFilter(low) {
		t.Fatalf("expected no trigger for low scores")
	}
	if _, ok := f.LastReason(); ok {
		t.Fatalf("non-triggering evaluation must not set a reason")
	}

	high := resultWithScores(t, map[perspective.Model]float64{perspective.ModelToxicity: 0.95})
	if !f.ShouldFilter(high) {
		t.Fatalf("expected trigger")
	}
	if f.ShouldFilter(low) {
		t.Fatalf("expected no trigger")
	}
	reason, ok := f.LastReason()
	if !ok || reason != perspective.ModelToxicity {
		t.Fatalf("non-triggering evaluation must keep the prior reason, got %v", reason)
	}
}

func TestShouldFilterInclusiveBoundary(t *testing.T) {
	f := New()
	f.SetThreshold(perspective.ModelToxicity, 0.5)
	result := resultWithScores(t, map[perspective.Model]float64{perspective.ModelToxicity: 0.5})
	if !f.ShouldFilter(result) {
		t.Fatalf("score equal to threshold must trigger")
	}
}

func TestShouldFilterMissingScoreNeverTriggers(t *testing.T) {
	f := New()
	f.SetThreshold(perspective.ModelSpam, 0.01)
	// SPAM was requested but is absent from the raw document: its score is
	// 0.0, which is below even a 0.01 threshold.
	result := resultWithScores(t, map[perspective.Model]float64{perspective.ModelToxicity: 0.2})
	if f.ShouldFilter(result) {
		t.Fatalf("absent score must not trigger")
	}
}

func TestShouldFilterTieBreakCatalogOrder(t *testing.T) {
	f := New()
	f.SetThreshold(perspective.ModelToxicity, 0.5)
	f.SetThreshold(perspective.ModelSpam, 0.5)

	result := resultWithScores(t, map[perspective.Model]float64{
		perspective.ModelToxicity: 0.7,
		perspective.ModelSpam:     0.7,
	})
	if !f.ShouldFilter(result) {
		t.Fatalf("expected trigger")
	}
	// SPAM comes after TOXICITY in catalog order, so an exact tie resolves
	// to SPAM.
	reason, _ := f.LastReason()
	if reason != perspective.ModelSpam {
		t.Fatalf("tie must resolve to the later catalog model, got %v", reason)
	}
}

func TestShouldFilterReasonIsMaxAmongTriggers(t *testing.T) {
	f := New()
	f.SetThreshold(perspective.ModelToxicity, 0.3)
	f.SetThreshold(perspective.ModelSpam, 0.3)
	f.SetThreshold(perspective.ModelObscene, 0.3)

	result := resultWithScores(t, map[perspective.Model]float64{
		perspective.ModelToxicity: 0.4,
		perspective.ModelSpam:     0.9,
		perspective.ModelObscene:  0.6,
	})
	if !f.ShouldFilter(result) {
		t.Fatalf("expected trigger")
	}
	reason, _ := f.LastReason()
	if reason != perspective.ModelSpam {
		t.Fatalf("expected SPAM as max-score reason, got %v", reason)
	}
}
