package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

type Store interface {
	CreateCheck(record CheckRecord) error
	GetCheck(checkID string) (CheckRecord, bool)
	ListChecks(limit int) []CheckRecord
	SaveThreshold(model string, value float64) error
	DeleteThreshold(model string) error
	ListThresholds() map[string]float64
	AppendAudit(event AuditEvent) error
	ListAudit(limit int) []AuditEvent
	GetMetricsOverview() MetricsOverview
}

// MemoryFileStore keeps everything in memory, optionally snapshotting to a
// JSON file after each write. It backs single-node deployments without
// Postgres, and tests.
type MemoryFileStore struct {
	mu         sync.RWMutex
	path       string
	checks     map[string]CheckRecord
	thresholds map[string]float64
	audit      []AuditEvent
}

func NewMemoryFileStore(path string) (*MemoryFileStore, error) {
	store := &MemoryFileStore{
		path:       path,
		checks:     map[string]CheckRecord{},
		thresholds: map[string]float64{},
		audit:      []AuditEvent{},
	}
	if strings.TrimSpace(path) == "" {
		return store, nil
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MemoryFileStore) CreateCheck(record CheckRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.checks[record.CheckID]; exists {
		return fmt.Errorf("check %s already exists", record.CheckID)
	}
	s.checks[record.CheckID] = record
	return s.persistLocked()
}

func (s *MemoryFileStore) GetCheck(checkID string) (CheckRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.checks[checkID]
	return record, ok
}

func (s *MemoryFileStore) ListChecks(limit int) []CheckRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CheckRecord, 0, len(s.checks))
	for _, record := range s.checks {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryFileStore) SaveThreshold(model string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds[model] = value
	return s.persistLocked()
}

func (s *MemoryFileStore) DeleteThreshold(model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.thresholds, model)
	return s.persistLocked()
}

func (s *MemoryFileStore) ListThresholds() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.thresholds))
	for model, value := range s.thresholds {
		out[model] = value
	}
	return out
}

func (s *MemoryFileStore) AppendAudit(event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(event.Timestamp) == "" {
		event.Timestamp = nowRFC3339()
	}
	s.audit = append(s.audit, event)
	if len(s.audit) > 5000 {
		s.audit = s.audit[len(s.audit)-5000:]
	}
	return s.persistLocked()
}

func (s *MemoryFileStore) ListAudit(limit int) []AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.audit) == 0 {
		return []AuditEvent{}
	}
	out := make([]AuditEvent, len(s.audit))
	copy(out, s.audit)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryFileStore) GetMetricsOverview() MetricsOverview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	overview := MetricsOverview{
		GeneratedAt:       nowRFC3339(),
		FilterHitsByModel: map[string]int{},
	}
	var topScoreTotal float64
	var upstreamTotal int64
	for _, record := range s.checks {
		overview.TotalChecks++
		if record.Filtered {
			overview.FilteredChecks++
			if record.Reason != "" {
				overview.FilterHitsByModel[record.Reason]++
			}
		}
		topScoreTotal += topScore(record.Scores)
		upstreamTotal += record.UpstreamMS
	}
	if overview.TotalChecks > 0 {
		overview.AverageTopScore = topScoreTotal / float64(overview.TotalChecks)
		overview.AverageUpstreamMS = upstreamTotal / int64(overview.TotalChecks)
	}
	return overview
}

func (s *MemoryFileStore) load() error {
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read store snapshot: %w", err)
	}
	var snapshot storeSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode store snapshot: %w", err)
	}
	for _, record := range snapshot.Checks {
		s.checks[record.CheckID] = record
	}
	if snapshot.Thresholds != nil {
		s.thresholds = snapshot.Thresholds
	}
	s.audit = snapshot.Audit
	if s.audit == nil {
		s.audit = []AuditEvent{}
	}
	return nil
}

func (s *MemoryFileStore) persistLocked() error {
	if strings.TrimSpace(s.path) == "" {
		return nil
	}
	checks := make([]CheckRecord, 0, len(s.checks))
	for _, record := range s.checks {
		checks = append(checks, record)
	}
	sort.Slice(checks, func(i, j int) bool {
		return checks[i].CreatedAt < checks[j].CreatedAt
	})
	snapshot := storeSnapshot{
		Checks:     checks,
		Thresholds: s.thresholds,
		Audit:      s.audit,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write store temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace store snapshot: %w", err)
	}
	return nil
}

type storeSnapshot struct {
	Checks     []CheckRecord      `json:"checks"`
	Thresholds map[string]float64 `json:"thresholds"`
	Audit      []AuditEvent       `json:"audit"`
}

func topScore(scores map[string]float64) float64 {
	max := 0.0
	for _, score := range scores {
		if score > max {
			max = score
		}
	}
	return max
}
