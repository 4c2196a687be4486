package server

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"commentguard/internal/perspective"
)

type fakeAnalyzer struct {
	payload string
	err     error
}

func (f fakeAnalyzer) Analyze(ctx context.Context, body string, models []perspective.Model) (*perspective.AnalysisResult, *perspective.RawResponse, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	result, err := perspective.ParseAnalysisResult(body, models, []byte(f.payload))
	if err != nil {
		return nil, nil, err
	}
	raw := &perspective.RawResponse{StatusCode: 200, Duration: 5 * time.Millisecond}
	return result, raw, nil
}

func newTestChecker(t *testing.T, cfg ServerConfig, analyzer Analyzer) (*Checker, *MemoryFileStore) {
	t.Helper()
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	checker, err := NewChecker(cfg, analyzer, store, nil)
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}
	return checker, store
}

func TestCheckerFiltersAndStores(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Thresholds = map[string]float64{"TOXICITY": 0.8, "SPAM": 0.9}
	analyzer := fakeAnalyzer{payload: `{"attributeScores":{
		"TOXICITY":{"summaryScore":{"value":0.85}},
		"SPAM":{"summaryScore":{"value":0.5}},
		"SEVERE_TOXICITY":{"summaryScore":{"value":0.1}}}}`}
	checker, store := newTestChecker(t, cfg, analyzer)

	record, err := checker.Check(context.Background(), CheckRequest{Text: "some hostile text"}, "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !record.Filtered {
		t.Fatalf("expected filtered record")
	}
	if record.Reason != "TOXICITY" {
		t.Fatalf("expected TOXICITY reason, got %q", record.Reason)
	}
	if record.Body != perspective.RedactedPlaceholder || !record.BodyRedacted {
		t.Fatalf("bodies must be redacted by default, got %q", record.Body)
	}
	if record.Scores["TOXICITY"] != 0.85 {
		t.Fatalf("score missing from record: %v", record.Scores)
	}

	stored, ok := store.GetCheck(record.CheckID)
	if !ok {
		t.Fatalf("record not persisted")
	}
	if stored.Reason != "TOXICITY" {
		t.Fatalf("persisted record diverges: %+v", stored)
	}

	audit := store.ListAudit(10)
	if len(audit) != 1 || audit[0].Action != "check.filtered" {
		t.Fatalf("expected one check.filtered audit event, got %+v", audit)
	}
}

func TestCheckerPassesBelowThresholds(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Thresholds = map[string]float64{"TOXICITY": 0.8, "SPAM": 0.9}
	analyzer := fakeAnalyzer{payload: `{"attributeScores":{
		"TOXICITY":{"summaryScore":{"value":0.5}},
		"SPAM":{"summaryScore":{"value":0.5}}}}`}
	checker, _ := newTestChecker(t, cfg, analyzer)

	record, err := checker.Check(context.Background(), CheckRequest{Text: "fine text"}, "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if record.Filtered || record.Reason != "" {
		t.Fatalf("expected pass, got %+v", record)
	}
}

func TestCheckerKeepsBodyWhenRetentionAllows(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Retention.StoreBodies = true
	analyzer := fakeAnalyzer{payload: `{"attributeScores":{}}`}
	checker, _ := newTestChecker(t, cfg, analyzer)

	record, err := checker.Check(context.Background(), CheckRequest{Text: "keep me"}, "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if record.Body != "keep me" || record.BodyRedacted {
		t.Fatalf("expected verbatim body, got %+v", record)
	}
}

func TestCheckerRejectsUnknownModel(t *testing.T) {
	checker, _ := newTestChecker(t, DefaultServerConfig(), fakeAnalyzer{payload: `{}`})
	_, err := checker.Check(context.Background(), CheckRequest{Text: "x", Models: []string{"NOPE"}}, "")
	if err == nil {
		t.Fatalf("expected invalid model error")
	}
}

func TestCheckerUpstreamFailurePropagates(t *testing.T) {
	checker, store := newTestChecker(t, DefaultServerConfig(), fakeAnalyzer{err: fmt.Errorf("boom")})
	_, err := checker.Check(context.Background(), CheckRequest{Text: "x"}, "")
	if err == nil {
		t.Fatalf("expected upstream error to propagate")
	}
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %T: %v", err, err)
	}
	if len(store.ListChecks(10)) != 0 {
		t.Fatalf("failed checks must not be recorded")
	}
}

func TestCheckerThresholdLifecycle(t *testing.T) {
	cfg := DefaultServerConfig()
	checker, store := newTestChecker(t, cfg, fakeAnalyzer{payload: `{}`})

	ctx := context.Background()
	if err := checker.SetThreshold(ctx, "SPAM", 0.4, "admin"); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if got := checker.Thresholds()["SPAM"]; got != 0.4 {
		t.Fatalf("expected 0.4, got %v", got)
	}
	if got := store.ListThresholds()["SPAM"]; got != 0.4 {
		t.Fatalf("threshold not persisted, got %v", got)
	}
	if err := checker.SetThreshold(ctx, "lowercase", 0.4, "admin"); err == nil {
		t.Fatalf("expected invalid model error")
	}

	if err := checker.ClearThreshold(ctx, "SPAM", "admin"); err != nil {
		t.Fatalf("ClearThreshold: %v", err)
	}
	if _, ok := checker.Thresholds()["SPAM"]; ok {
		t.Fatalf("threshold not cleared")
	}
	if _, ok := store.ListThresholds()["SPAM"]; ok {
		t.Fatalf("threshold not deleted from store")
	}
}

func TestCheckerStoredThresholdsOverrideConfig(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	if err := store.SaveThreshold("TOXICITY", 0.3); err != nil {
		t.Fatalf("SaveThreshold: %v", err)
	}
	cfg := DefaultServerConfig()
	cfg.Thresholds = map[string]float64{"TOXICITY": 0.9}
	checker, err := NewChecker(cfg, fakeAnalyzer{payload: `{}`}, store, nil)
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}
	if got := checker.Thresholds()["TOXICITY"]; got != 0.3 {
		t.Fatalf("stored override must win, got %v", got)
	}
}
