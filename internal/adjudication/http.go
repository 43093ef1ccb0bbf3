package adjudication

import (
	"arbiter/backend/internal/apperr"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// HTTPName is reported by HTTPAdjudicator.Name.
	HTTPName = "http"

	defaultHTTPTimeout = 90 * time.Second
	maxResponseBytes   = 1 << 20
)

// HTTPAdjudicator asks an OpenAI-compatible chat-completions endpoint for a
// verdict in JSON mode.
type HTTPAdjudicator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	prompts     *Prompts
	httpClient  *http.Client
}

// HTTPOption configures an HTTPAdjudicator.
type HTTPOption func(*HTTPAdjudicator)

func WithPrompts(p *Prompts) HTTPOption {
	return func(a *HTTPAdjudicator) { a.prompts = p }
}

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *HTTPAdjudicator) { a.httpClient = c }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(a *HTTPAdjudicator) { a.httpClient.Timeout = timeout }
}

func WithTemperature(t float64) HTTPOption {
	return func(a *HTTPAdjudicator) { a.temperature = t }
}

// NewHTTPAdjudicator builds a client for baseURL, e.g.
// "https://api.openai.com/v1". The "/chat/completions" path is appended.
func NewHTTPAdjudicator(baseURL, apiKey, model string, opts ...HTTPOption) (*HTTPAdjudicator, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("adjudication: base URL is required")
	}
	a := &HTTPAdjudicator{
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		temperature: 0.2,
		prompts:     DefaultPrompts(),
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *HTTPAdjudicator) Name() string { return HTTPName }

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (a *HTTPAdjudicator) Judge(ctx context.Context, sub Submission) (json.RawMessage, error) {
	system, user, err := a.prompts.Render(sub)
	if err != nil {
		return nil, err
	}

	reqBody := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    a.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("adjudication: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("adjudication: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adjudication: send request: %w: %w", apperr.ErrAdjudicationUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("adjudication: read response: %w: %w", apperr.ErrAdjudicationUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("adjudication: status %d: %s: %w", resp.StatusCode, truncate(string(body), 200), apperr.ErrAdjudicationUnavailable)
	}

	var respData chatResponse
	if err := json.Unmarshal(body, &respData); err != nil {
		return nil, fmt.Errorf("adjudication: decode response: %w: %w", apperr.ErrAdjudicationMalformed, err)
	}
	if respData.Error != nil {
		return nil, fmt.Errorf("adjudication: api error: %s: %w", respData.Error.Message, apperr.ErrAdjudicationUnavailable)
	}
	if len(respData.Choices) == 0 {
		return nil, fmt.Errorf("adjudication: empty response: %w", apperr.ErrAdjudicationMalformed)
	}

	raw, err := ExtractJSONObject(respData.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("adjudication: %w: %w", apperr.ErrAdjudicationMalformed, err)
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
