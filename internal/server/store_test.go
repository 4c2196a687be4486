package server

import (
	"path/filepath"
	"testing"
)

func TestMemoryFileStoreSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewMemoryFileStore(path)
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}

	record := CheckRecord{
		CheckID:   "chk_1",
		CreatedAt: nowRFC3339(),
		Body:      "REDACTED",
		Models:    []string{"TOXICITY"},
		Scores:    map[string]float64{"TOXICITY": 0.91},
		Filtered:  true,
		Reason:    "TOXICITY",
	}
	if err := store.CreateCheck(record); err != nil {
		t.Fatalf("CreateCheck: %v", err)
	}
	if err := store.CreateCheck(record); err == nil {
		t.Fatalf("duplicate check id must fail")
	}
	if err := store.SaveThreshold("SPAM", 0.5); err != nil {
		t.Fatalf("SaveThreshold: %v", err)
	}

	reloaded, err := NewMemoryFileStore(path)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	got, ok := reloaded.GetCheck("chk_1")
	if !ok || got.Reason != "TOXICITY" {
		t.Fatalf("snapshot did not survive reload: %+v", got)
	}
	if reloaded.ListThresholds()["SPAM"] != 0.5 {
		t.Fatalf("thresholds did not survive reload")
	}
}

func TestMemoryFileStoreOverview(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	checks := []CheckRecord{
		{CheckID: "a", CreatedAt: "2026-01-01T00:00:00Z", Scores: map[string]float64{"TOXICITY": 0.75}, Filtered: true, Reason: "TOXICITY", UpstreamMS: 10},
		{CheckID: "b", CreatedAt: "2026-01-02T00:00:00Z", Scores: map[string]float64{"SPAM": 0.25}, UpstreamMS: 30},
	}
	for _, record := range checks {
		if err := store.CreateCheck(record); err != nil {
			t.Fatalf("CreateCheck: %v", err)
		}
	}
	overview := store.GetMetricsOverview()
	if overview.TotalChecks != 2 || overview.FilteredChecks != 1 {
		t.Fatalf("unexpected overview: %+v", overview)
	}
	if overview.FilterHitsByModel["TOXICITY"] != 1 {
		t.Fatalf("missing filter hit: %+v", overview.FilterHitsByModel)
	}
	if overview.AverageUpstreamMS != 20 {
		t.Fatalf("expected average upstream 20ms, got %d", overview.AverageUpstreamMS)
	}
	if overview.AverageTopScore != 0.5 {
		t.Fatalf("expected average top score 0.5, got %v", overview.AverageTopScore)
	}
}

func TestMemoryFileStoreListOrder(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	for _, id := range []string{"old", "new"} {
		createdAt := "2026-01-01T00:00:00Z"
		if id == "new" {
			createdAt = "2026-02-01T00:00:00Z"
		}
		if err := store.CreateCheck(CheckRecord{CheckID: id, CreatedAt: createdAt}); err != nil {
			t.Fatalf("CreateCheck: %v", err)
		}
	}
	list := store.ListChecks(10)
	if len(list) != 2 || list[0].CheckID != "new" {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if len(store.ListChecks(1)) != 1 {
		t.Fatalf("limit not applied")
	}
}
