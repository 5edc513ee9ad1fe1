package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kordun/tresor/internal/metrics"
	"github.com/kordun/tresor/internal/traces"
)

// HeaderSession carries the sentinel session id on telemetry forwards.
const HeaderSession = "X-Sentinel-Session"

// HTTPClient is the production scorer client. It owns its http.Client; the
// timeout bounds the single evaluation attempt.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a scorer client for the given base URL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Evaluate(ctx context.Context, req *EvaluationRequest) (*EvaluationResponse, error) {
	ctx, span := traces.StartSpan(ctx, "scorer.evaluate",
		traces.SessionID(req.SessionID),
		traces.ActionType(req.ActionType),
	)
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("scorer: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("scorer: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	timer := time.Now()
	resp, err := c.client.Do(httpReq)
	metrics.ScorerDuration.Observe(time.Since(timer).Seconds())
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &UnavailableError{Status: resp.StatusCode}
	}

	var out EvaluationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return &out, nil
}

func (c *HTTPClient) ForwardBatch(ctx context.Context, sessionID, stream string, payload []byte) error {
	ctx, span := traces.StartSpan(ctx, "scorer.forward_batch",
		traces.SessionID(sessionID),
		traces.Stream(stream),
	)
	defer span.End()

	url := fmt.Sprintf("%s/v1/telemetry/%s", c.baseURL, stream)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("scorer: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderSession, sessionID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("scorer: forward %s batch: %w", stream, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("scorer: forward %s batch: status %d", stream, resp.StatusCode)
	}
	return nil
}
