package models

import "time"

// Photo is one uploaded photo in a collage. The ID is opaque and stable for
// the photo's whole lifetime; it is the key every other component tracks.
type Photo struct {
	ID        string    `json:"id"`
	CollageID string    `json:"collageId"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}
