package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/docuchat/internal/models"
)

// Client calls a running docuchat server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: http.DefaultClient}
}

// Upload sends the file at path for ownerID.
func (c *Client) Upload(ctx context.Context, ownerID, path string) (*models.UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/upload", url.Values{"user_id": {ownerID}}), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out models.UploadResponse
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search asks a question in a conversation. An empty conversationID starts a new one.
func (c *Client) Search(ctx context.Context, r models.SearchRequest) (*models.SearchResponse, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/search", nil), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out models.SearchResponse
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Files lists an owner's files.
func (c *Client) Files(ctx context.Context, ownerID string) ([]models.FileEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/get_file", url.Values{"user_id": {ownerID}}), nil)
	if err != nil {
		return nil, err
	}
	var out []models.FileEntry
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteFile deletes an owner's file by name.
func (c *Client) DeleteFile(ctx context.Context, ownerID, filename string) error {
	q := url.Values{"user_id": {ownerID}, "filename": {filename}}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url("/delete_file", q), nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK, nil)
}

// DeleteAll deletes every file of an owner.
func (c *Client) DeleteAll(ctx context.Context, ownerID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url("/delete_all_files", url.Values{"user_id": {ownerID}}), nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK, nil)
}

// Status fetches the server status.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/status", nil), nil)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) url(path string, q url.Values) string {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) do(req *http.Request, want int, out interface{}) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		var e models.StatusResponse
		if json.Unmarshal(b, &e) == nil && e.Message != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Message)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
