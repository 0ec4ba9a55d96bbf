package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client handles object storage operations against a Bunny-compatible
// storage zone. Uploaded objects are served from the configured CDN host.
type Client struct {
	bucket     string
	apiKey     string
	baseURL    string
	cdnURL     string
	httpClient *http.Client
}

// NewClient creates a new object storage client.
func NewClient(bucket, apiKey, baseURL, cdnURL string) *Client {
	return &Client{
		bucket:  bucket,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		cdnURL:  strings.TrimRight(cdnURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// UploadBuffer uploads a byte buffer and returns the public URL.
func (c *Client) UploadBuffer(ctx context.Context, buffer []byte, remotePath, contentType string) (string, error) {
	return c.UploadStream(ctx, remotePath, bytes.NewReader(buffer), contentType)
}

// UploadStream uploads an io.Reader and returns the public URL.
func (c *Client) UploadStream(ctx context.Context, remotePath string, reader io.Reader, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.bucket, strings.TrimLeft(remotePath, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, reader)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("AccessKey", c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("object storage error: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}

	return c.PublicURL(remotePath), nil
}

// Delete removes an object from storage. Missing objects are not an error.
func (c *Client) Delete(ctx context.Context, remotePath string) error {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.bucket, strings.TrimLeft(remotePath, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("AccessKey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("object storage error: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}

	return nil
}

// PublicURL constructs the public CDN URL for an object.
func (c *Client) PublicURL(remotePath string) string {
	return fmt.Sprintf("%s/%s", c.cdnURL, strings.TrimLeft(remotePath, "/"))
}

// ExtractRelativePath converts a full CDN URL back to the storage path.
// Non-matching values are returned unchanged since they may already be relative.
func (c *Client) ExtractRelativePath(publicURL string) string {
	prefix := c.cdnURL + "/"
	if strings.HasPrefix(publicURL, prefix) {
		return publicURL[len(prefix):]
	}
	return publicURL
}
