package imagestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client wraps the ImageKit media REST API: upload, lookup by file name,
// delete. Profile pictures are the only thing stored here.
type Client struct {
	privateKey string
	apiBase    string
	uploadURL  string
	httpClient *http.Client
}

// NewClient builds an ImageKit client. Returns nil if the key is not set so
// callers can degrade to text-only profiles.
func NewClient(privateKey, apiBase string) *Client {
	if privateKey == "" {
		return nil
	}
	if apiBase == "" {
		apiBase = "https://api.imagekit.io/v1"
	}
	return &Client{
		privateKey: privateKey,
		apiBase:    strings.TrimRight(apiBase, "/"),
		uploadURL:  "https://upload.imagekit.io/api/v1/files/upload",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// UploadResult holds the fields we use from an upload response.
type UploadResult struct {
	FileID string `json:"fileId"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

func (c *Client) auth() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.privateKey+":"))
}

// Upload sends the file as base64 form data and returns the hosted URL.
func (c *Client) Upload(ctx context.Context, fileName string, data []byte) (*UploadResult, error) {
	form := url.Values{}
	form.Set("file", base64.StdEncoding.EncodeToString(data))
	form.Set("fileName", fileName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.auth())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image upload returned HTTP %d", resp.StatusCode)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return &result, nil
}

// FileIDByName resolves the file id backing a hosted file name. ImageKit's
// delete endpoint only takes file ids, while we store URLs.
func (c *Client) FileIDByName(ctx context.Context, name string) (string, error) {
	q := url.Values{}
	q.Set("searchQuery", fmt.Sprintf("name = %q", name))
	u := c.apiBase + "/files?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.auth())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("file search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("file search returned HTTP %d", resp.StatusCode)
	}

	var files []struct {
		FileID string `json:"fileId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return "", fmt.Errorf("decoding file search response: %w", err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no file named %q", name)
	}
	return files[0].FileID, nil
}

// Delete removes a file by id.
func (c *Client) Delete(ctx context.Context, fileID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.apiBase+"/files/"+fileID, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.auth())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("file delete returned HTTP %d", resp.StatusCode)
	}
	return nil
}
