// Package classify is the boundary to the external video classifier: given
// the path of an assembled deliverable it returns a free-text verdict. The
// model itself is an opaque remote service with unbounded but finite latency;
// callers must never hold capture resources while awaiting it.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrDisabled is returned when no classifier endpoint is configured.
var ErrDisabled = errors.New("classifier not configured")

// Classifier produces a text verdict for a video file.
type Classifier interface {
	Classify(ctx context.Context, videoPath string) (string, error)
}

// HTTPClassifier calls a remote classification service over HTTP.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClassifier creates a classifier client for the given endpoint.
func NewHTTPClassifier(endpoint string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	FilePath string `json:"file_path"`
}

type classifyResponse struct {
	Verdict string `json:"verdict"`
	Error   string `json:"error,omitempty"`
}

// Classify posts the deliverable path to the classifier service and returns
// its verdict text.
func (c *HTTPClassifier) Classify(ctx context.Context, videoPath string) (string, error) {
	body, err := json.Marshal(classifyRequest{FilePath: videoPath})
	if err != nil {
		return "", fmt.Errorf("failed to encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read classifier response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed classifyResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		// Some deployments answer with the bare verdict text.
		return string(data), nil
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("classifier error: %s", parsed.Error)
	}
	return parsed.Verdict, nil
}

// Disabled is the no-op classifier used when no endpoint is configured.
type Disabled struct{}

// Classify always reports that classification is unavailable.
func (Disabled) Classify(ctx context.Context, videoPath string) (string, error) {
	return "", ErrDisabled
}
