// Package filter decides whether an analysis result should be suppressed,
// comparing per-model scores against caller-configured thresholds.
package filter

import (
	"commentguard/internal/perspective"
)

// DefaultThreshold is returned for models without a configured threshold.
// Scores are probabilities in [0,1], so an unconfigured model never triggers.
const DefaultThreshold = 1.0

// Filter holds a mutable threshold per model and the reason of the last
// triggering evaluation. It is not synchronized: concurrent use requires a
// single writer or an external lock.
type Filter struct {
	thresholds map[perspective.Model]float64
	lastReason perspective.Model
	hasReason  bool
}

func New() *Filter {
	return &Filter{
		thresholds: make(map[perspective.Model]float64),
	}
}

// SetThreshold upserts the threshold for m. Last write wins.
func (f *Filter) SetThreshold(m perspective.Model, value float64) {
	f.thresholds[m] = value
}

// ClearThreshold removes the configured threshold for m, if any.
func (f *Filter) ClearThreshold(m perspective.Model) {
	delete(f.thresholds, m)
}

// ClearAll removes every configured threshold.
func (f *Filter) ClearAll() {
	f.thresholds = make(map[perspective.Model]float64)
}

// ThresholdOf returns the configured threshold for m, or DefaultThreshold
// when none is set.
func (f *Filter) ThresholdOf(m perspective.Model) float64 {
	if value, ok := f.thresholds[m]; ok {
		return value
	}
	return DefaultThreshold
}

// Thresholds returns a copy of the configured thresholds.
func (f *Filter) Thresholds() map[perspective.Model]float64 {
	out := make(map[perspective.Model]float64, len(f.thresholds))
	for m, value := range f.thresholds {
		out[m] = value
	}
	return out
}

// ShouldFilter reports whether result should be suppressed: true when at
// least one configured model's score meets or exceeds its threshold. Models
// are evaluated in catalog order, and the recorded reason is the triggering
// model with the highest score; on equal scores the later model in catalog
// order wins. A non-triggering evaluation leaves the previous reason intact.
func (f *Filter) ShouldFilter(result *perspective.AnalysisResult) bool {
	triggered := false
	var reason perspective.Model
	maxScore := 0.0
	for _, m := range perspective.Catalog() {
		threshold, ok := f.thresholds[m]
		if !ok {
			continue
		}
		score := result.ScoreOf(m)
		if score < threshold {
			continue
		}
		if !triggered || score >= maxScore {
			reason = m
			maxScore = score
		}
		triggered = true
	}
	if triggered {
		f.lastReason = reason
		f.hasReason = true
	}
	return triggered
}

// LastReason returns the model that caused the most recent triggering
// evaluation. The second return is false until the first trigger.
func (f *Filter) LastReason() (perspective.Model, bool) {
	return f.lastReason, f.hasReason
}
