package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes caps how much of an inference response is read.
const maxResponseBytes = 1 << 20

// Compile-time interface check.
var _ Backend = (*HTTPBackend)(nil)

// HTTPBackend calls a hosted summarization model that follows the Hugging
// Face inference API contract.
type HTTPBackend struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPBackend creates a backend posting to endpoint. An empty token
// sends no Authorization header.
func NewHTTPBackend(endpoint, token string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	MaxLength int  `json:"max_length"`
	MinLength int  `json:"min_length"`
	DoSample  bool `json:"do_sample"`
}

type inferenceResult struct {
	SummaryText string `json:"summary_text"`
}

type inferenceError struct {
	Error string `json:"error"`
}

// Summarize sends one text to the model and returns its summary.
func (b *HTTPBackend) Summarize(
	ctx context.Context, text string, length Length,
) (string, error) {
	body, err := json.Marshal(inferenceRequest{
		Inputs: text,
		Parameters: inferenceParameters{
			MaxLength: length.Max,
			MinLength: length.Min,
			DoSample:  false,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, b.endpoint, bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling inference service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))

		var ie inferenceError
		if json.Unmarshal(raw, &ie) == nil && ie.Error != "" {
			msg = ie.Error
		}

		return "", fmt.Errorf("inference service returned %d: %s", resp.StatusCode, msg)
	}

	var results []inferenceResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}

	if len(results) == 0 || strings.TrimSpace(results[0].SummaryText) == "" {
		return "", fmt.Errorf("inference service returned no summary")
	}

	return results[0].SummaryText, nil
}
