package detectctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"detectd/pkg/types"
)

// Client is a thin HTTP client for a running detectd instance.
type Client struct {
	Base string
	HTTP *http.Client
}

// NewClient builds a Client for the given base URL, e.g. http://127.0.0.1:8080.
func NewClient(base string) *Client {
	return &Client{
		Base: strings.TrimRight(base, "/"),
		HTTP: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, er.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var st types.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *Client) Detectors(ctx context.Context) ([]types.DetectorDescriptor, error) {
	var resp types.DetectorsResponse
	err := c.do(ctx, http.MethodGet, "/detectors", nil, &resp)
	return resp.Detectors, err
}

func (c *Client) Load(ctx context.Context, id string, force bool) error {
	path := "/detectors/" + id + "/load"
	if force {
		path += "?force=1"
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) Unload(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/detectors/"+id+"/unload", nil, nil)
}

func (c *Client) Analyze(ctx context.Context, req types.AnalyzeRequest) (types.AggregatedResult, error) {
	var agg types.AggregatedResult
	err := c.do(ctx, http.MethodPost, "/analyze", req, &agg)
	return agg, err
}

func (c *Client) CacheStats(ctx context.Context) (types.CacheStats, error) {
	var st types.CacheStats
	err := c.do(ctx, http.MethodGet, "/cache/stats", nil, &st)
	return st, err
}

func (c *Client) ClearCache(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/cache", nil, nil)
}
