package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/textproc"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "text-embedding-3-small"
)

// OpenAI is a client of an OpenAI-compatible /embeddings endpoint. Ollama's native response
// shape is accepted as well.
type OpenAI struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int
}

type OpenAIOption func(*OpenAI)

func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *OpenAI) {
		c.baseURL = url
	}
}

func WithOpenAIModel(model string) OpenAIOption {
	return func(c *OpenAI) {
		c.model = model
	}
}

func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAI) {
		c.client.Timeout = d
	}
}

func WithOpenAIMaxRetries(n int) OpenAIOption {
	return func(c *OpenAI) {
		c.maxRetries = n
	}
}

func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(c *OpenAI) {
		c.client = client
	}
}

func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	c := &OpenAI{
		baseURL:    defaultOpenAIBaseURL,
		apiKey:     apiKey,
		model:      defaultOpenAIModel,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 5,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" && c.baseURL == defaultOpenAIBaseURL {
		return nil, goerr.New("openai api key is required")
	}
	return c, nil
}

func (c *OpenAI) Name() string { return "openai:" + c.model }

type openAIRequest struct {
	Input  string `json:"input,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	// Ollama native shape
	Embedding []float32 `json:"embedding"`
}

func (c *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	cleaned := textproc.Preprocess(text)
	if cleaned == "" {
		return nil, goerr.Wrap(ErrUnavailable, "text is empty after cleaning")
	}

	body, err := json.Marshal(openAIRequest{Input: cleaned, Prompt: cleaned, Model: c.model})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal embedding request")
	}
	url := c.baseURL + "/embeddings"

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, lastDelay(lastErr, attempt-1)); err != nil {
				return nil, err
			}
		}

		vec, err := c.post(ctx, url, body)
		if err == nil {
			return vec, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, goerr.Wrap(lastErr, "embedding retries exhausted",
		goerr.V("url", url), goerr.V("retries", c.maxRetries))
}

type retryableError struct {
	err        error
	retryAfter time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	_, ok := err.(*retryableError)
	return ok
}

func lastDelay(err error, attempt int) time.Duration {
	if re, ok := err.(*retryableError); ok && re.retryAfter > 0 {
		return re.retryAfter
	}
	return retryDelay(attempt)
}

func (c *OpenAI) post(ctx context.Context, url string, body []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding request", goerr.V("url", url))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, goerr.Wrap(ctx.Err(), "embedding request cancelled")
		}
		return nil, &retryableError{err: goerr.Wrap(err, "failed to send embedding request", goerr.V("url", url))}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		var after time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			after = time.Duration(secs) * time.Second
		}
		return nil, &retryableError{
			err:        goerr.New("embedding endpoint is busy", goerr.V("status", resp.StatusCode)),
			retryAfter: after,
		}
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, goerr.New("embedding request failed",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(msg)))
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, goerr.Wrap(err, "failed to decode embedding response")
	}

	switch {
	case len(out.Data) > 0 && len(out.Data[0].Embedding) > 0:
		return out.Data[0].Embedding, nil
	case len(out.Embedding) > 0:
		return out.Embedding, nil
	default:
		return nil, goerr.Wrap(ErrUnavailable, "no embedding values returned")
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "embedding retry cancelled")
	case <-timer.C:
		return nil
	}
}
