// Package provider implements the ModelLister port against an
// OpenAI-compatible HTTP API.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ModelLister = (*Client)(nil)

// maxErrorBody bounds how much of a failed response is read for the message.
const maxErrorBody = 64 << 10

// Client lists models from a provider endpoint.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewClient creates a Client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. http.Client with the per-request issue timeout
func NewClient(endpoint model.EndpointConfig, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()

	return &Client{
		http:    &http.Client{Transport: cacheTransport, Timeout: timeout},
		baseURL: endpoint.BaseURL(),
		apiKey:  apiKey,
		logger:  logger,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  logger,
	}
}

// Factory returns a driven.ModelListerFactory that builds production clients
// with the given timeout.
func Factory(timeout time.Duration, logger *slog.Logger) driven.ModelListerFactory {
	return func(endpoint model.EndpointConfig, apiKey string) (driven.ModelLister, error) {
		return NewClient(endpoint, apiKey, timeout, logger), nil
	}
}

type listModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ListModels returns the identifiers advertised by GET {base}/models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build list models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("list models response",
		"url", c.baseURL+"/models",
		"status", resp.StatusCode,
		"from_cache", resp.Header.Get(httpcache.XFromCache) == "1",
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}

	var body listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode list models response: %w", err)
	}

	ids := make([]string, 0, len(body.Data))
	for _, m := range body.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// statusError turns a non-2xx response into an error that carries the
// provider's message when it sent one.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return fmt.Errorf("list models: status %d: %s", resp.StatusCode, body.Error.Message)
	}
	return fmt.Errorf("list models: status %d", resp.StatusCode)
}
