// Package apiclient is the viewer-side HTTP client for the collage API. It
// implements the repository operations a sync session and moderation
// gateway need, against a remote collage server.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"photo-collage-app/internal/models"
	"photo-collage-app/internal/storage"
)

// Client talks to one collage server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the server at baseURL, e.g. "http://example.com".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// List fetches the full photo list of a collage.
func (c *Client) List(ctx context.Context, collageID string) ([]models.Photo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/collages/"+collageID+"/photos", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list returned %d", storage.ErrStorageUnavailable, resp.StatusCode)
	}

	var photos []models.Photo
	if err := json.NewDecoder(resp.Body).Decode(&photos); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
	}
	return photos, nil
}

// Delete submits a moderation delete. A photo that is already gone is
// success, matching the server's idempotent delete semantics.
func (c *Client) Delete(ctx context.Context, photoID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/photos/"+photoID, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return storage.ErrNotFound
	default:
		return fmt.Errorf("%w: delete returned %d", storage.ErrStorageUnavailable, resp.StatusCode)
	}
}
