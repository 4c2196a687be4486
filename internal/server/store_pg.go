package server

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) CreateCheck(record CheckRecord) error {
	models, _ := json.Marshal(record.Models)
	scores, _ := json.Marshal(record.Scores)
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO checks (check_id,created_at,body,body_redacted,models,scores,filtered,reason,upstream_ms)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		record.CheckID, record.CreatedAt, record.Body, record.BodyRedacted,
		models, scores, record.Filtered, nullStr(record.Reason), record.UpstreamMS)
	return err
}

func (s *PgStore) GetCheck(checkID string) (CheckRecord, bool) {
	row := s.pool.QueryRow(context.Background(),
		`SELECT check_id,created_at,body,body_redacted,models,scores,filtered,reason,upstream_ms
		 FROM checks WHERE check_id=$1`, checkID)
	record, err := scanCheckRecord(row)
	if err != nil {
		return CheckRecord{}, false
	}
	return record, true
}

func (s *PgStore) ListChecks(limit int) []CheckRecord {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT check_id,created_at,body,body_redacted,models,scores,filtered,reason,upstream_ms
		 FROM checks ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return []CheckRecord{}
	}
	defer rows.Close()
	var out []CheckRecord
	for rows.Next() {
		record, err := scanCheckRecord(rows)
		if err != nil {
			continue
		}
		out = append(out, record)
	}
	if out == nil {
		return []CheckRecord{}
	}
	return out
}

func (s *PgStore) SaveThreshold(model string, value float64) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO thresholds (model, value) VALUES ($1, $2)
		 ON CONFLICT (model) DO UPDATE SET value=$2, updated_at=now()`,
		model, value)
	return err
}

func (s *PgStore) DeleteThreshold(model string) error {
	_, err := s.pool.Exec(context.Background(),
		`DELETE FROM thresholds WHERE model=$1`, model)
	return err
}

func (s *PgStore) ListThresholds() map[string]float64 {
	out := map[string]float64{}
	rows, err := s.pool.Query(context.Background(), `SELECT model, value FROM thresholds`)
	if err != nil {
		return out
	}
	defer rows.Close()
	for rows.Next() {
		var model string
		var value float64
		if rows.Scan(&model, &value) != nil {
			continue
		}
		out[model] = value
	}
	return out
}

func (s *PgStore) AppendAudit(event AuditEvent) error {
	if strings.TrimSpace(event.Timestamp) == "" {
		event.Timestamp = nowRFC3339()
	}
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO audit_events (timestamp,check_id,actor_type,actor_sub,action,result,detail)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		event.Timestamp, nullStr(event.CheckID), event.ActorType, nullStr(event.ActorSub),
		event.Action, event.Result, nullStr(event.Detail))
	return err
}

func (s *PgStore) ListAudit(limit int) []AuditEvent {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT timestamp,check_id,actor_type,actor_sub,action,result,detail
		 FROM audit_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return []AuditEvent{}
	}
	defer rows.Close()
	var out []AuditEvent
	for rows.Next() {
		var a AuditEvent
		var ts time.Time
		var checkID, actorSub, detail *string
		if err := rows.Scan(&ts, &checkID, &a.ActorType, &actorSub, &a.Action, &a.Result, &detail); err != nil {
			continue
		}
		a.Timestamp = ts.UTC().Format(time.RFC3339)
		a.CheckID = deref(checkID)
		a.ActorSub = deref(actorSub)
		a.Detail = deref(detail)
		out = append(out, a)
	}
	if out == nil {
		return []AuditEvent{}
	}
	return out
}

func (s *PgStore) GetMetricsOverview() MetricsOverview {
	overview := MetricsOverview{
		GeneratedAt:       nowRFC3339(),
		FilterHitsByModel: map[string]int{},
	}
	_ = s.pool.QueryRow(context.Background(),
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE filtered),
			COALESCE(AVG(upstream_ms)::bigint,0)
		 FROM checks`).Scan(
		&overview.TotalChecks, &overview.FilteredChecks, &overview.AverageUpstreamMS)

	rows, _ := s.pool.Query(context.Background(),
		`SELECT reason, COUNT(*) FROM checks WHERE filtered AND reason IS NOT NULL GROUP BY reason`)
	if rows != nil {
		defer rows.Close()
		for rows.Next() {
			var reason string
			var count int
			if rows.Scan(&reason, &count) != nil {
				continue
			}
			overview.FilterHitsByModel[reason] = count
		}
	}

	// average top score is computed client-side; scores is a jsonb map
	scoreRows, _ := s.pool.Query(context.Background(), `SELECT scores FROM checks`)
	if scoreRows != nil {
		defer scoreRows.Close()
		var total float64
		var count int
		for scoreRows.Next() {
			var scoresJSON []byte
			if scoreRows.Scan(&scoresJSON) != nil {
				continue
			}
			var scores map[string]float64
			if json.Unmarshal(scoresJSON, &scores) != nil {
				continue
			}
			total += topScore(scores)
			count++
		}
		if count > 0 {
			overview.AverageTopScore = total / float64(count)
		}
	}
	return overview
}

// --- helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanCheckRecord(row scannable) (CheckRecord, error) {
	var record CheckRecord
	var modelsJSON, scoresJSON []byte
	var reason *string
	err := row.Scan(&record.CheckID, &record.CreatedAt, &record.Body, &record.BodyRedacted,
		&modelsJSON, &scoresJSON, &record.Filtered, &reason, &record.UpstreamMS)
	if err != nil {
		return CheckRecord{}, err
	}
	record.Reason = deref(reason)
	_ = json.Unmarshal(modelsJSON, &record.Models)
	_ = json.Unmarshal(scoresJSON, &record.Scores)
	return record, nil
}

func nullStr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Ensure PgStore implements Store at compile time.
var _ Store = (*PgStore)(nil)
