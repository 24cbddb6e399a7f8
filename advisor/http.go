package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 1 << 20

// HTTPClient talks to an advisor service that accepts a JSON Request or UnrollQuery
// by POST and answers with JSON. Model-backed services often wrap their JSON in
// a markdown code fence; the fence is stripped before decoding.
type HTTPClient struct {
	Endpoint string
	// Model is forwarded to the service, which may use it to pick a backend
	Model  string
	Client *http.Client
}

type suggestEnvelope struct {
	Request
	Model string `json:"model,omitempty"`
}

type suggestResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

func (c *HTTPClient) Suggest(ctx context.Context, req Request) ([]Suggestion, error) {
	raw, err := c.post(ctx, "", req.RequestID, suggestEnvelope{Request: req, Model: c.Model})
	if err != nil {
		return nil, err
	}
	// both {"suggestions": [...]} and a bare list are accepted
	if strings.HasPrefix(raw, "[") {
		var list []Suggestion
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("advisor response was not valid JSON: %w", err)
		}
		return list, nil
	}
	var resp suggestResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("advisor response was not valid JSON: %w", err)
	}
	return resp.Suggestions, nil
}

func (c *HTTPClient) SuggestUnroll(ctx context.Context, q UnrollQuery) (UnrollAdvice, error) {
	raw, err := c.post(ctx, "/unroll", q.RequestID, q)
	if err != nil {
		return UnrollAdvice{}, err
	}
	var advice UnrollAdvice
	if err := json.Unmarshal([]byte(raw), &advice); err != nil {
		return UnrollAdvice{}, fmt.Errorf("advisor response was not valid JSON: %w", err)
	}
	return advice, nil
}

func (c *HTTPClient) post(ctx context.Context, path, requestID string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("could not encode advisor request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.Endpoint, "/")+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("could not build advisor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("advisor request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("could not read advisor response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("advisor answered %s", resp.Status)
	}
	return unwrapFenced(strings.TrimSpace(string(data))), nil
}

func unwrapFenced(s string) string {
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			return s
		}
		if j := strings.LastIndex(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
