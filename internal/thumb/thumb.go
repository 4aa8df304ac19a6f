// Package thumb generates and caches downscaled previews of stored photos.
package thumb

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"sync"

	"github.com/nfnt/resize"
)

// Cache stores generated thumbnails keyed by photo ID.
type Cache struct {
	mu    sync.RWMutex
	cache map[string][]byte
}

func NewCache() *Cache {
	return &Cache{cache: make(map[string][]byte)}
}

// Get returns the cached thumbnail for a photo, if present.
func (c *Cache) Get(photoID string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.cache[photoID]
	return data, ok
}

// Put caches a generated thumbnail.
func (c *Cache) Put(photoID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[photoID] = data
}

// Drop removes a deleted photo's thumbnail.
func (c *Cache) Drop(photoID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, photoID)
}

// Generate decodes the original image and re-encodes a JPEG thumbnail that
// fits within maxSize on its longer edge.
func Generate(imageBytes []byte, maxSize uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	thumbnail := resize.Thumbnail(maxSize, maxSize, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumbnail, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
