package perspective

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const analyzePath = "/v1alpha1/comments:analyze"

type Config struct {
	BaseURL    string
	APIKey     string
	Languages  []string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type RawResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

func (r *RawResponse) Header(name string) string {
	if r == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// Client talks to the comment analyzer service. It performs exactly one HTTP
// call per Analyze; retries, caching and rate limiting are the caller's
// business.
type Client struct {
	baseURL   string
	apiKey    string
	languages []string
	client    *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://commentanalyzer.googleapis.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		languages: languages,
		client:    httpClient,
	}
}

// Analyze submits body with the given models and returns the parsed result
// alongside the raw HTTP exchange. Every model must belong to the catalog.
func (c *Client) Analyze(ctx context.Context, body string, models []Model) (*AnalysisResult, *RawResponse, error) {
	if len(models) == 0 {
		return nil, nil, errors.New("at least one model is required")
	}
	attributes := make(map[string]emptyObject, len(models))
	for _, m := range models {
		wireName, err := m.WireName()
		if err != nil {
			return nil, nil, err
		}
		attributes[wireName] = emptyObject{}
	}
	req := analyzeRequest{
		Comment:             analyzeComment{Text: body},
		Languages:           c.languages,
		RequestedAttributes: attributes,
	}

	raw, err := c.post(ctx, analyzePath, req)
	if err != nil {
		return nil, raw, err
	}
	result, err := ParseAnalysisResult(body, models, raw.Body)
	if err != nil {
		return nil, raw, err
	}
	return result, raw, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*RawResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	fullURL := c.baseURL + path
	if c.apiKey != "" {
		fullURL += "?key=" + url.QueryEscape(c.apiKey)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	start := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer response.Body.Close()

	bodyBytes, readErr := io.ReadAll(response.Body)
	raw := &RawResponse{
		StatusCode: response.StatusCode,
		Headers:    response.Header.Clone(),
		Body:       bodyBytes,
		Duration:   time.Since(start),
	}
	if readErr != nil {
		return raw, fmt.Errorf("read response body: %w", readErr)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		envelope, ok := ParseAPIErrorEnvelope(bodyBytes)
		if !ok {
			return raw, fmt.Errorf("api status %d: %s", response.StatusCode, string(bodyBytes))
		}
		return raw, &APIError{
			StatusCode: response.StatusCode,
			Envelope:   envelope,
			Body:       bodyBytes,
		}
	}
	return raw, nil
}

func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
