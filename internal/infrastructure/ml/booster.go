// Package ml talks to an external NER service used as an optional confidence
// booster behind the deterministic classifier stage.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"PriceScanner/internal/classify"
	"PriceScanner/internal/domain"
)

// Client posts raw listing names for entity recognition.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ classify.Booster = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Boost sends the raw name together with the deterministic guess and returns
// the service's enrichment. The caller decides what to adopt; this stage
// never overrides the keyword result on its own.
func (c *Client) Boost(ctx context.Context, rawName string, guess domain.Classified) (domain.Classified, error) {
	if c.http == nil {
		return guess, nil
	}

	payload := map[string]any{
		"raw_name": rawName,
		"brand":    guess.Brand,
		"model":    guess.Model,
	}

	var resp struct {
		Brand  string `json:"brand"`
		Lineup string `json:"lineup"`
		Model  string `json:"model"`
	}
	if err := c.post(ctx, "/entities", payload, &resp); err != nil {
		return domain.Classified{}, err
	}

	return domain.Classified{
		Brand:  resp.Brand,
		Lineup: resp.Lineup,
		Model:  resp.Model,
		Region: guess.Region,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
