package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"commentguard/internal/filter"
	"commentguard/internal/perspective"
)

func main() {
	baseURL := flag.String("base-url", envOr("PERSPECTIVE_BASE_URL", "https://commentanalyzer.googleapis.com"), "Comment analyzer base URL")
	apiKey := flag.String("api-key", envOr("PERSPECTIVE_API_KEY", ""), "API key for the analyzer endpoint")
	models := flag.String("models", "TOXICITY,SEVERE_TOXICITY,SPAM", "Comma-separated model wire names to request")
	thresholds := flag.String("thresholds", "", "Comma-separated MODEL=value pairs, e.g. TOXICITY=0.8,SPAM=0.9")
	languages := flag.String("languages", "en", "Comma-separated language codes")
	text := flag.String("text", "", "Text to check (reads stdin when empty and no -file is given)")
	file := flag.String("file", "", "Read the text to check from this file")
	timeout := flag.Duration("timeout", 30*time.Second, "HTTP timeout")
	redact := flag.Bool("redact", true, "Redact the body in the printed report")
	format := flag.String("format", "text", "Output format: text|json")
	strict := flag.Bool("strict", false, "Exit non-zero when the filter triggers")
	flag.Parse()

	if strings.TrimSpace(*apiKey) == "" {
		exitWith("PERSPECTIVE_API_KEY or -api-key is required")
	}

	requested, err := parseModels(*models)
	if err != nil {
		exitWith(err.Error())
	}
	f, err := parseThresholds(*thresholds)
	if err != nil {
		exitWith(err.Error())
	}

	body, err := readBody(*text, *file)
	if err != nil {
		exitWith("failed to read input text: " + err.Error())
	}

	client := perspective.NewClient(perspective.Config{
		BaseURL:   *baseURL,
		APIKey:    *apiKey,
		Languages: splitList(*languages),
		Timeout:   *timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout*2)
	defer cancel()

	result, _, err := client.Analyze(ctx, body, requested)
	if err != nil {
		if apiErr, ok := perspective.IsAPIError(err); ok {
			exitWith("analyzer rejected the request: " + apiErr.Error())
		}
		exitWith("analyze failed: " + err.Error())
	}

	filtered := f.ShouldFilter(result)
	reason := ""
	if m, ok := f.LastReason(); ok && filtered {
		reason = string(m)
	}

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "json":
		printJSON(result, requested, filtered, reason, *redact)
	default:
		fmt.Print(result.Describe(*redact))
		if filtered {
			fmt.Printf("Filtered: yes (reason: %s)\n", reason)
		} else {
			fmt.Println("Filtered: no")
		}
	}

	if *strict && filtered {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readBody(text, file string) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	if strings.TrimSpace(file) != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseModels(csv string) ([]perspective.Model, error) {
	var out []perspective.Model
	for _, name := range splitList(csv) {
		m, err := perspective.FromWireName(name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one model is required")
	}
	return out, nil
}

func parseThresholds(csv string) (*filter.Filter, error) {
	f := filter.New()
	for _, pair := range splitList(csv) {
		name, rawValue, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("invalid threshold %q (want MODEL=value)", pair)
		}
		m, err := perspective.FromWireName(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(rawValue), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold value for %s: %w", name, err)
		}
		f.SetThreshold(m, value)
	}
	return f, nil
}

func splitList(csv string) []string {
	var out []string
	for _, item := range strings.Split(csv, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func printJSON(result *perspective.AnalysisResult, requested []perspective.Model, filtered bool, reason string, redact bool) {
	scores := make(map[string]float64, len(requested))
	for _, m := range requested {
		scores[string(m)] = result.ScoreOf(m)
	}
	body := result.Body()
	if redact {
		body = perspective.RedactedPlaceholder
	}
	payload := map[string]any{
		"body":     body,
		"scores":   scores,
		"filtered": filtered,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		exitWith("failed to encode output JSON: " + err.Error())
	}
	fmt.Println(string(data))
}

func exitWith(message string) {
	fmt.Fprintln(os.Stderr, "error:", message)
	os.Exit(2)
}
