package perspective

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RedactedPlaceholder replaces the original body in redacted reports.
const RedactedPlaceholder = "REDACTED"

// AnalysisResult is the immutable outcome of one analyze call: the submitted
// body, the models that were requested for it, and the score document the
// service returned. Once constructed it is read-only and safe to share across
// goroutines.
type AnalysisResult struct {
	body      string
	requested []Model
	scores    map[string]float64
	raw       json.RawMessage
}

// ParseAnalysisResult builds an AnalysisResult from the raw response document.
// Only attributeScores is interpreted; the rest of the document is preserved
// verbatim in Raw. A document without attributeScores is valid and yields zero
// scores for every lookup.
func ParseAnalysisResult(body string, requested []Model, payload []byte) (*AnalysisResult, error) {
	var resp analyzeResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}
	scores := make(map[string]float64, len(resp.AttributeScores))
	for wireName, attr := range resp.AttributeScores {
		scores[wireName] = attr.SummaryScore.Value
	}
	models := make([]Model, len(requested))
	copy(models, requested)
	raw := make(json.RawMessage, len(payload))
	copy(raw, payload)
	return &AnalysisResult{
		body:      body,
		requested: models,
		scores:    scores,
		raw:       raw,
	}, nil
}

// Body returns the original submitted text.
func (r *AnalysisResult) Body() string {
	return r.body
}

// Requested returns the models that were requested for this analysis.
func (r *AnalysisResult) Requested() []Model {
	out := make([]Model, len(r.requested))
	copy(out, r.requested)
	return out
}

// Raw returns the full response document as received, including keys the
// library does not interpret.
func (r *AnalysisResult) Raw() json.RawMessage {
	return r.raw
}

// ScoreOf returns the summary score for m, or 0.0 when the model is absent
// from the response's attributeScores. A partial result or an unrequested
// model degrades to "no signal", never to an error.
func (r *AnalysisResult) ScoreOf(m Model) float64 {
	return r.scores[string(m)]
}

// Convenience accessors, one per catalog model. Sugar over ScoreOf.

func (r *AnalysisResult) Toxicity() float64          { return r.ScoreOf(ModelToxicity) }
func (r *AnalysisResult) SevereToxicity() float64    { return r.ScoreOf(ModelSevereToxicity) }
func (r *AnalysisResult) ToxicityFast() float64      { return r.ScoreOf(ModelToxicityFast) }
func (r *AnalysisResult) Spam() float64              { return r.ScoreOf(ModelSpam) }
func (r *AnalysisResult) Obscene() float64           { return r.ScoreOf(ModelObscene) }
func (r *AnalysisResult) Incoherent() float64        { return r.ScoreOf(ModelIncoherent) }
func (r *AnalysisResult) Inflammatory() float64      { return r.ScoreOf(ModelInflammatory) }
func (r *AnalysisResult) LikelyToReject() float64    { return r.ScoreOf(ModelLikelyToReject) }
func (r *AnalysisResult) AttackOnAuthor() float64    { return r.ScoreOf(ModelAttackOnAuthor) }
func (r *AnalysisResult) AttackOnCommenter() float64 { return r.ScoreOf(ModelAttackOnCommenter) }
func (r *AnalysisResult) Unsubstantial() float64     { return r.ScoreOf(ModelUnsubstantial) }

// Describe renders a human-readable report listing the score of every
// requested model. With redactBody the original text is replaced by
// RedactedPlaceholder so results can be logged without leaking submitted
// content.
func (r *AnalysisResult) Describe(redactBody bool) string {
	var b strings.Builder
	body := r.body
	if redactBody {
		body = RedactedPlaceholder
	}
	fmt.Fprintf(&b, "Body: %s\n", body)
	fmt.Fprintf(&b, "Scores:\n")
	for _, m := range r.requested {
		fmt.Fprintf(&b, "  %s: %.4f\n", string(m), r.ScoreOf(m))
	}
	return b.String()
}
