// Package falclient is the HTTP client for the fal.ai platform: the public
// model catalog, the async queue, synchronous inference, and file storage.
//
// Authenticated endpoints use the `Authorization: Key <api-key>` scheme.
// Catalog and schema endpoints are public. Every method takes a context and
// returns the decoded response or an error. No retries happen here; the
// upload worker layers its own retry policy on top.
package falclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/raveenplgithub/pmind-fal-ai-mcp/internal/config"
)

// defaultTimeout bounds any single HTTP exchange. Long model runs pass
// their own deadline via context instead.
const defaultTimeout = 5 * time.Minute

// Client talks to the fal.ai API.
type Client struct {
	cfg   *config.Config
	httpc *http.Client
	log   *slog.Logger

	// pollInterval is the delay between Subscribe status polls;
	// shortened by tests.
	pollInterval time.Duration
}

// New builds a client from the loaded configuration.
func New(cfg *config.Config, log *slog.Logger) *Client {
	return &Client{
		cfg:          cfg,
		httpc:        &http.Client{Timeout: defaultTimeout},
		log:          log,
		pollInterval: subscribePollInterval,
	}
}

// QueueHandle identifies a submitted async request.
type QueueHandle struct {
	RequestID   string `json:"request_id"`
	ResponseURL string `json:"response_url"`
	StatusURL   string `json:"status_url"`
	CancelURL   string `json:"cancel_url"`
}

// SubmitOptions carries the optional knobs for queue submission.
type SubmitOptions struct {
	// Path is an optional subpath on the model endpoint.
	Path string
	// WebhookURL receives a callback when the request finishes.
	WebhookURL string
	// Priority orders the request within the queue, when set.
	Priority *int
	// Hint is an opaque runner hint forwarded to the platform.
	Hint string
}

// ListModels fetches the model catalog page.
func (c *Client) ListModels(ctx context.Context, page, total *int) (any, error) {
	params := url.Values{}
	if page != nil {
		params.Set("page", strconv.Itoa(*page))
	}
	if total != nil {
		params.Set("total", strconv.Itoa(*total))
	}
	var out any
	if err := c.getJSON(ctx, c.cfg.APIURL+"/models", params, false, &out); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return out, nil
}

// SearchModels searches the catalog by keywords.
func (c *Client) SearchModels(ctx context.Context, keywords string) (any, error) {
	params := url.Values{}
	params.Set("keywords", keywords)
	var out any
	if err := c.getJSON(ctx, c.cfg.APIURL+"/models", params, false, &out); err != nil {
		return nil, fmt.Errorf("failed to search models: %w", err)
	}
	return out, nil
}

// FetchOpenAPISchema retrieves a model's OpenAPI document.
func (c *Client) FetchOpenAPISchema(ctx context.Context, modelID string) (map[string]any, error) {
	params := url.Values{}
	params.Set("endpoint_id", modelID)
	var out map[string]any
	if err := c.getJSON(ctx, c.cfg.APIURL+"/openapi/queue/openapi.json", params, false, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch schema for %s: %w", modelID, err)
	}
	return out, nil
}

// Submit enqueues an async inference request and returns its handle.
func (c *Client) Submit(ctx context.Context, modelID string, arguments map[string]any, opts SubmitOptions) (*QueueHandle, error) {
	endpoint := joinURL(c.cfg.QueueURL, modelID, opts.Path)
	if opts.WebhookURL != "" {
		endpoint += "?fal_webhook=" + url.QueryEscape(opts.WebhookURL)
	}

	req, err := c.newJSONRequest(ctx, http.MethodPost, endpoint, arguments)
	if err != nil {
		return nil, err
	}
	if opts.Priority != nil {
		req.Header.Set("X-Fal-Queue-Priority", strconv.Itoa(*opts.Priority))
	}
	if opts.Hint != "" {
		req.Header.Set("X-Fal-Runner-Hint", opts.Hint)
	}

	var handle QueueHandle
	if err := c.doJSON(req, &handle); err != nil {
		return nil, fmt.Errorf("failed to submit to %s: %w", modelID, err)
	}
	return &handle, nil
}

// Status polls an async request. The response carries at least a status
// field (IN_QUEUE, IN_PROGRESS, COMPLETED) and, when requested, logs.
func (c *Client) Status(ctx context.Context, modelID, requestID string, withLogs bool) (map[string]any, error) {
	endpoint := joinURL(c.cfg.QueueURL, modelID, "requests", requestID, "status")
	params := url.Values{}
	if withLogs {
		params.Set("logs", "1")
	}
	var out map[string]any
	if err := c.getJSON(ctx, endpoint, params, true, &out); err != nil {
		return nil, fmt.Errorf("failed to check status of %s: %w", requestID, err)
	}
	return out, nil
}

// Result fetches a completed async request's payload.
func (c *Client) Result(ctx context.Context, modelID, requestID string) (any, error) {
	endpoint := joinURL(c.cfg.QueueURL, modelID, "requests", requestID)
	var out any
	if err := c.getJSON(ctx, endpoint, nil, true, &out); err != nil {
		return nil, fmt.Errorf("failed to get result of %s: %w", requestID, err)
	}
	return out, nil
}

// Cancel aborts a queued or running async request.
func (c *Client) Cancel(ctx context.Context, modelID, requestID string) (any, error) {
	endpoint := joinURL(c.cfg.QueueURL, modelID, "requests", requestID, "cancel")
	req, err := c.newJSONRequest(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var out any
	if err := c.doJSON(req, &out); err != nil {
		return nil, fmt.Errorf("failed to cancel %s: %w", requestID, err)
	}
	return out, nil
}

// Run performs synchronous inference, blocking until the model responds.
// A zero timeout uses the client default.
func (c *Client) Run(ctx context.Context, modelID string, arguments map[string]any, subPath string, timeout time.Duration, hint string) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	endpoint := joinURL(c.cfg.RunURL, modelID, subPath)
	req, err := c.newJSONRequest(ctx, http.MethodPost, endpoint, arguments)
	if err != nil {
		return nil, err
	}
	if hint != "" {
		req.Header.Set("X-Fal-Runner-Hint", hint)
	}

	var out any
	if err := c.doJSON(req, &out); err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", modelID, err)
	}
	return out, nil
}

// subscribePollInterval is the delay between status polls in Subscribe.
const subscribePollInterval = time.Second

// Subscribe submits an async request and polls until it completes, then
// returns the result. Logs from the final status poll are discarded; use
// Status directly when logs matter.
func (c *Client) Subscribe(ctx context.Context, modelID string, arguments map[string]any, opts SubmitOptions) (any, error) {
	handle, err := c.Submit(ctx, modelID, arguments, opts)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := c.Status(ctx, modelID, handle.RequestID, false)
		if err != nil {
			return nil, err
		}
		if s, _ := status["status"].(string); s == "COMPLETED" {
			return c.Result(ctx, modelID, handle.RequestID)
		}
	}
}

// getJSON performs a GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, auth bool, out any) error {
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if auth {
		req.Header.Set("Authorization", "Key "+c.cfg.APIKey)
	}
	return c.doJSON(req, out)
}

// newJSONRequest builds an authenticated request with a JSON body.
func (c *Client) newJSONRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Key "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON executes the request and decodes a JSON response, turning non-2xx
// statuses into errors carrying the response body.
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, truncate(string(data), 512))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// joinURL appends path segments to a base URL, skipping empty segments.
// Model ids contain slashes and must not be escaped.
func joinURL(base string, segments ...string) string {
	u := base
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if seg[0] != '/' {
			u += "/"
		}
		u += seg
	}
	return u
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// contentTypeFor guesses a MIME type from the file extension.
func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// filenameFromURL extracts a usable filename from a URL, ignoring query
// parameters. Falls back to "downloaded_file".
func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "downloaded_file"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "downloaded_file"
	}
	return name
}

// statFileSize is a test seam for upload size reporting.
func statFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
