package predictor

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

type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// HTTPPredictor posts {"prompt": ...} to a model endpoint and reads {"result": ...}.
type HTTPPredictor struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPPredictor(cfg HTTPConfig) (*HTTPPredictor, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("predictor endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPPredictor{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (p *HTTPPredictor) Predict(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("marshal predict payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build predict request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request prediction: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read predict response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("prediction failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Result *string `json:"result"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode predict response: %w", err)
	}
	if parsed.Result == nil {
		return "", fmt.Errorf("predict response has no result field")
	}
	return *parsed.Result, nil
}
