// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package locussync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPFetcher is the production FetchFunc implementation: it asks the
// backend for a delta over plain HTTP/JSON.
//
//	GET {BaseURL}{Path}?since=<cursor>&q=<query>
//
// Both parameters are omitted when empty; an absent since means "fetch
// everything".
type HTTPFetcher[T Entity] struct {
	BaseURL string
	Path    string                                    // e.g. "/businesses/orders/delta"
	Token   func(ctx context.Context) (string, error) // returns bearer token, optional
	HTTP    *http.Client
}

// NewHTTPFetcher creates a fetcher with a default HTTP client.
func NewHTTPFetcher[T Entity](baseURL, path string, token func(ctx context.Context) (string, error)) *HTTPFetcher[T] {
	return &HTTPFetcher[T]{
		BaseURL: baseURL,
		Path:    path,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch implements FetchFunc.
func (f *HTTPFetcher[T]) Fetch(ctx context.Context, req FetchRequest) (*Delta[T], error) {
	endpoint := f.BaseURL + f.Path
	params := url.Values{}
	if req.Since != "" {
		params.Set("since", req.Since)
	}
	if req.Query != "" {
		params.Set("q", req.Query)
	}
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if f.Token != nil {
		token, err := f.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var deltaResp DeltaResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&deltaResp); err != nil {
		return nil, fmt.Errorf("failed to decode delta response: %w", err)
	}
	if deltaResp.LatestTimestamp == "" {
		return nil, fmt.Errorf("delta response missing latestTimestamp")
	}

	return &Delta[T]{Items: deltaResp.Items, LatestTimestamp: deltaResp.LatestTimestamp}, nil
}
