package perspective

import "encoding/json"

type analyzeComment struct {
	Text string `json:"text"`
}

// emptyObject marshals to {}; each requested attribute is an empty object
// keyed by its wire name.
type emptyObject struct{}

type analyzeRequest struct {
	Comment             analyzeComment         `json:"comment"`
	Languages           []string               `json:"languages"`
	RequestedAttributes map[string]emptyObject `json:"requestedAttributes"`
}

type summaryScore struct {
	Value float64 `json:"value"`
}

type attributeScore struct {
	SummaryScore summaryScore `json:"summaryScore"`
}

type analyzeResponse struct {
	AttributeScores map[string]attributeScore `json:"attributeScores"`
}

type APIErrorEnvelope struct {
	Error APIErrorDetail `json:"error"`
}

type APIErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type APIError struct {
	StatusCode int
	Envelope   APIErrorEnvelope
	Body       []byte
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Envelope.Error.Message != "" {
		return e.Envelope.Error.Status + ": " + e.Envelope.Error.Message
	}
	return string(e.Body)
}

func ParseAPIErrorEnvelope(body []byte) (APIErrorEnvelope, bool) {
	var envelope APIErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return APIErrorEnvelope{}, false
	}
	if envelope.Error.Message == "" && envelope.Error.Status == "" {
		return APIErrorEnvelope{}, false
	}
	return envelope, true
}
