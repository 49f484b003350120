// storage.go covers file movement: uploads into fal storage, URL fetches,
// and downloads of generated artifacts to the local filesystem.
//
// Uploads use the two-step storage protocol: an authenticated initiate call
// returns a pre-signed upload URL plus the final file URL, then the bytes
// are PUT directly to the upload URL.
package falclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// UploadFile pushes a local file into fal storage and returns its public
// file URL. This is the worker's "upload bytes, get back a reference URL"
// operation.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	size, err := statFileSize(path)
	if err != nil {
		return "", err
	}

	initiate := map[string]any{
		"file_name":    filepath.Base(path),
		"content_type": contentTypeFor(path),
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, c.cfg.RestURL+"/storage/upload/initiate", initiate)
	if err != nil {
		return "", err
	}
	var grant struct {
		UploadURL string `json:"upload_url"`
		FileURL   string `json:"file_url"`
	}
	if err := c.doJSON(req, &grant); err != nil {
		return "", fmt.Errorf("failed to initiate upload: %w", err)
	}
	if grant.UploadURL == "" || grant.FileURL == "" {
		return "", fmt.Errorf("initiate upload returned no URLs")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, grant.UploadURL, f)
	if err != nil {
		return "", err
	}
	putReq.ContentLength = size
	putReq.Header.Set("Content-Type", contentTypeFor(path))

	resp, err := c.httpc.Do(putReq)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to upload file: %s", resp.Status)
	}

	return grant.FileURL, nil
}

// FetchToFile streams the given URL into dest and returns the byte count.
func (c *Client) FetchToFile(ctx context.Context, rawURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DownloadInfo describes a completed local download.
type DownloadInfo struct {
	Filename    string `json:"filename"`
	FilePath    string `json:"file_path"`
	SizeBytes   int64  `json:"size_bytes"`
	DownloadDir string `json:"download_dir"`
	URL         string `json:"url"`
}

// DownloadFile fetches a URL into the download directory. An empty filename
// is derived from the URL; an empty dir uses the configured default.
func (c *Client) DownloadFile(ctx context.Context, rawURL, filename, dir string) (*DownloadInfo, error) {
	if dir == "" {
		dir = c.cfg.DownloadDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}
	if filename == "" {
		filename = filenameFromURL(rawURL)
	}

	dest := filepath.Join(dir, filename)
	size, err := c.FetchToFile(ctx, rawURL, dest)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}

	absDest, err := filepath.Abs(dest)
	if err != nil {
		absDest = dest
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}

	return &DownloadInfo{
		Filename:    filename,
		FilePath:    absDest,
		SizeBytes:   size,
		DownloadDir: absDir,
		URL:         rawURL,
	}, nil
}
