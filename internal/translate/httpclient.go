package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPClientConfig configures the hosted translation provider.
type HTTPClientConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// HTTPClient talks to a translation endpoint over JSON. Throttling responses
// (429) come back wrapped with RateLimited, carrying the Retry-After hint
// when the provider sends one.
type HTTPClient struct {
	cfg  HTTPClientConfig
	http *http.Client
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

type translateRequest struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}

type translateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func (c *HTTPClient) Translate(ctx context.Context, lang, text string) (string, error) {
	body, err := json.Marshal(translateRequest{Target: lang, Text: text})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		err := fmt.Errorf("translate: provider returned status %d", resp.StatusCode)
		return "", RateLimited(err, parseRetryAfter(resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode != http.StatusOK {
		// Include a short body excerpt; provider errors are usually one line.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(b))
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("translate: provider error: %s", msg)
	}

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("translate: decoding response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("translate: provider error: %s", out.Error)
	}
	return out.Text, nil
}

// parseRetryAfter handles the delta-seconds form. The HTTP-date form is rare
// on translation APIs and falls back to no hint.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
