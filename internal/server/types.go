package server

import "time"

type Principal struct {
	Subject  string `json:"subject"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CheckRequest is one moderation check. Models is optional; when empty the
// server's configured default set is requested.
type CheckRequest struct {
	Text   string   `json:"text"`
	Models []string `json:"models,omitempty"`
}

// CheckRecord is the stored outcome of one check. Body holds the submitted
// text only when retention allows it; otherwise the redacted placeholder.
type CheckRecord struct {
	CheckID      string             `json:"check_id"`
	CreatedAt    string             `json:"created_at"`
	Body         string             `json:"body"`
	BodyRedacted bool               `json:"body_redacted"`
	Models       []string           `json:"models"`
	Scores       map[string]float64 `json:"scores"`
	Filtered     bool               `json:"filtered"`
	Reason       string             `json:"reason,omitempty"`
	UpstreamMS   int64              `json:"upstream_ms"`
}

type ThresholdUpdate struct {
	Model string  `json:"model"`
	Value float64 `json:"value"`
}

type AuditEvent struct {
	Timestamp string `json:"timestamp"`
	CheckID   string `json:"check_id,omitempty"`
	ActorType string `json:"actor_type"`
	ActorSub  string `json:"actor_sub,omitempty"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	Detail    string `json:"detail,omitempty"`
}

type MetricsOverview struct {
	GeneratedAt       string         `json:"generated_at"`
	TotalChecks       int            `json:"total_checks"`
	FilteredChecks    int            `json:"filtered_checks"`
	FilterHitsByModel map[string]int `json:"filter_hits_by_model"`
	AverageTopScore   float64        `json:"average_top_score"`
	AverageUpstreamMS int64          `json:"average_upstream_ms"`
}

// UpstreamError marks a failed call to the analyzer service. The router maps
// it to 502 since the fault is on the gateway side, not the caller's request.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "upstream analyze failed: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
