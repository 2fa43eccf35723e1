// SPDX-License-Identifier: MIT

package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMediaServerTimeout bounds each liveness-probe HTTP request.
const DefaultMediaServerTimeout = 5 * time.Second

// MediaServerClient is a trimmed liveness-probe client for an external
// media server (e.g. MediaMTX) fronting the RTMP/SRT ingest listener.
// Grounded directly on internal/mediamtx.Client's GET-path-list pattern,
// cut down to the one call IngestServer needs: is this path ready.
type MediaServerClient struct {
	baseURL    string
	path       string
	httpClient *http.Client
}

// NewMediaServerClient builds a client against baseURL (e.g.
// "http://localhost:9997") that checks path's readiness.
func NewMediaServerClient(baseURL, path string) *MediaServerClient {
	return &MediaServerClient{
		baseURL: baseURL,
		path:    path,
		httpClient: &http.Client{
			Timeout: DefaultMediaServerTimeout,
		},
	}
}

type mediaServerPath struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

// IsPathReady reports whether the media server considers the configured
// path ready (i.e. it is receiving a live source).
func (c *MediaServerClient) IsPathReady(ctx context.Context, pathOverride string) (bool, error) {
	p := c.path
	if pathOverride != "" {
		p = pathOverride
	}

	url := fmt.Sprintf("%s/v3/paths/get/%s", c.baseURL, p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request media server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("media server returned %d: %s", resp.StatusCode, body)
	}

	var mp mediaServerPath
	if err := json.NewDecoder(resp.Body).Decode(&mp); err != nil {
		return false, fmt.Errorf("decode media server response: %w", err)
	}
	return mp.Ready, nil
}
