package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"commentguard/internal/filter"
	"commentguard/internal/perspective"
)

// Analyzer is the upstream scoring call the checker depends on. Satisfied by
// *perspective.Client; tests substitute fakes.
type Analyzer interface {
	Analyze(ctx context.Context, body string, models []perspective.Model) (*perspective.AnalysisResult, *perspective.RawResponse, error)
}

// CheckerService is the surface the HTTP router consumes.
type CheckerService interface {
	Check(ctx context.Context, req CheckRequest, actor string) (CheckRecord, error)
	Thresholds() map[string]float64
	SetThreshold(ctx context.Context, model string, value float64, actor string) error
	ClearThreshold(ctx context.Context, model string, actor string) error
	ClearAllThresholds(ctx context.Context, actor string) error
}

// Checker runs moderation checks: one upstream analyze call, one filter
// evaluation, one stored record. The filter itself is single-threaded state,
// so every use of it happens under mu.
type Checker struct {
	mu            sync.Mutex
	analyzer      Analyzer
	filter        *filter.Filter
	store         Store
	obs           *Observability
	defaultModels []perspective.Model
	storeBodies   bool
}

func NewChecker(cfg ServerConfig, analyzer Analyzer, store Store, obs *Observability) (*Checker, error) {
	defaultModels := make([]perspective.Model, 0, len(cfg.Upstream.Models))
	for _, name := range cfg.Upstream.Models {
		m, err := perspective.FromWireName(name)
		if err != nil {
			return nil, fmt.Errorf("upstream.models: %w", err)
		}
		defaultModels = append(defaultModels, m)
	}

	f := filter.New()
	for name, value := range cfg.Thresholds {
		m, err := perspective.FromWireName(name)
		if err != nil {
			return nil, fmt.Errorf("thresholds: %w", err)
		}
		f.SetThreshold(m, value)
	}
	// persisted runtime overrides win over the config file
	for name, value := range store.ListThresholds() {
		m, err := perspective.FromWireName(name)
		if err != nil {
			slog.Warn("ignoring stored threshold for unknown model", "model", name)
			continue
		}
		f.SetThreshold(m, value)
	}

	return &Checker{
		analyzer:      analyzer,
		filter:        f,
		store:         store,
		obs:           obs,
		defaultModels: defaultModels,
		storeBodies:   cfg.Retention.StoreBodies,
	}, nil
}

func (c *Checker) Check(ctx context.Context, req CheckRequest, actor string) (CheckRecord, error) {
	models := c.defaultModels
	if len(req.Models) > 0 {
		models = make([]perspective.Model, 0, len(req.Models))
		for _, name := range req.Models {
			m, err := perspective.FromWireName(name)
			if err != nil {
				return CheckRecord{}, err
			}
			models = append(models, m)
		}
	}

	result, raw, err := c.analyzer.Analyze(ctx, req.Text, models)
	if err != nil {
		c.obs.MarkCheck(ctx, "error")
		return CheckRecord{}, &UpstreamError{Err: err}
	}
	var upstreamMS int64
	if raw != nil {
		upstreamMS = raw.Duration.Milliseconds()
		c.obs.MarkUpstream(ctx, upstreamMS)
	}

	c.mu.Lock()
	filtered := c.filter.ShouldFilter(result)
	var reason string
	if filtered {
		if m, ok := c.filter.LastReason(); ok {
			reason = string(m)
		}
	}
	c.mu.Unlock()

	scores := make(map[string]float64, len(models))
	modelNames := make([]string, 0, len(models))
	for _, m := range models {
		scores[string(m)] = result.ScoreOf(m)
		modelNames = append(modelNames, string(m))
	}

	body := req.Text
	bodyRedacted := false
	if !c.storeBodies {
		body = perspective.RedactedPlaceholder
		bodyRedacted = true
	}

	record := CheckRecord{
		CheckID:      newCheckID(),
		CreatedAt:    nowRFC3339(),
		Body:         body,
		BodyRedacted: bodyRedacted,
		Models:       modelNames,
		Scores:       scores,
		Filtered:     filtered,
		Reason:       reason,
		UpstreamMS:   upstreamMS,
	}
	if err := c.store.CreateCheck(record); err != nil {
		c.obs.MarkCheck(ctx, "store_error")
		return CheckRecord{}, fmt.Errorf("store check: %w", err)
	}

	if filtered {
		c.obs.MarkCheck(ctx, "filtered")
		c.obs.MarkFilterHit(ctx, reason)
		_ = c.store.AppendAudit(AuditEvent{
			CheckID:   record.CheckID,
			ActorType: "api",
			ActorSub:  actor,
			Action:    "check.filtered",
			Result:    reason,
		})
	} else {
		c.obs.MarkCheck(ctx, "passed")
	}
	return record, nil
}

func (c *Checker) Thresholds() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64)
	for m, value := range c.filter.Thresholds() {
		out[string(m)] = value
	}
	return out
}

func (c *Checker) SetThreshold(ctx context.Context, model string, value float64, actor string) error {
	m, err := perspective.FromWireName(model)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.filter.SetThreshold(m, value)
	c.mu.Unlock()
	if err := c.store.SaveThreshold(string(m), value); err != nil {
		return fmt.Errorf("persist threshold: %w", err)
	}
	c.obs.MarkThresholdChange(ctx, string(m), "set")
	return c.store.AppendAudit(AuditEvent{
		ActorType: "admin",
		ActorSub:  actor,
		Action:    "threshold.set",
		Result:    fmt.Sprintf("%s=%v", m, value),
	})
}

func (c *Checker) ClearThreshold(ctx context.Context, model string, actor string) error {
	m, err := perspective.FromWireName(model)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.filter.ClearThreshold(m)
	c.mu.Unlock()
	if err := c.store.DeleteThreshold(string(m)); err != nil {
		return fmt.Errorf("delete threshold: %w", err)
	}
	c.obs.MarkThresholdChange(ctx, string(m), "clear")
	return c.store.AppendAudit(AuditEvent{
		ActorType: "admin",
		ActorSub:  actor,
		Action:    "threshold.clear",
		Result:    string(m),
	})
}

func (c *Checker) ClearAllThresholds(ctx context.Context, actor string) error {
	c.mu.Lock()
	models := c.filter.Thresholds()
	c.filter.ClearAll()
	c.mu.Unlock()
	for m := range models {
		if err := c.store.DeleteThreshold(string(m)); err != nil {
			return fmt.Errorf("delete threshold %s: %w", m, err)
		}
	}
	c.obs.MarkThresholdChange(ctx, "*", "clear_all")
	return c.store.AppendAudit(AuditEvent{
		ActorType: "admin",
		ActorSub:  actor,
		Action:    "threshold.clear_all",
		Result:    "ok",
	})
}

func newCheckID() string {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		return "chk_unknown"
	}
	return "chk_" + hex.EncodeToString(raw)
}

var _ CheckerService = (*Checker)(nil)
