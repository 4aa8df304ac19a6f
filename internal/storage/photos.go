package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"photo-collage-app/internal/models"
)

// EventSink receives a change event for every successful create/delete.
// The server hub implements it; nil disables publication (tests).
type EventSink interface {
	Publish(ev models.ChangeEvent)
}

// PhotoStore is the authoritative photo repository for collages. Every
// successful mutation is published to the sink, which is what ultimately
// feeds subscribed viewers.
type PhotoStore struct {
	db   *DB
	sink EventSink
}

func NewPhotoStore(db *DB, sink EventSink) *PhotoStore {
	return &PhotoStore{db: db, sink: sink}
}

// List returns all photos of a collage, oldest first.
func (s *PhotoStore) List(ctx context.Context, collageID string) ([]models.Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collage_id, url, created_at FROM photos
		 WHERE collage_id = ? ORDER BY created_at ASC, id ASC`, collageID)
	if err != nil {
		return nil, fmt.Errorf("%w: list photos: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.CollageID, &p.URL, &p.CreatedAt); err != nil {
			slog.Warn("storage: skipping unreadable photo row", "error", err)
			continue
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list photos: %v", ErrStorageUnavailable, err)
	}

	return photos, nil
}

// Create validates the uploaded bytes as an image, stores them, and
// publishes the insert event.
func (s *PhotoStore) Create(ctx context.Context, collageID string, imageBytes []byte) (models.Photo, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(imageBytes)); err != nil {
		return models.Photo{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	photo := models.Photo{
		ID:        uuid.NewString(),
		CollageID: collageID,
		CreatedAt: time.Now().UTC(),
	}
	photo.URL = "/photos/" + photo.ID

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO photos (id, collage_id, url, image, created_at) VALUES (?, ?, ?, ?, ?)`,
		photo.ID, photo.CollageID, photo.URL, imageBytes, photo.CreatedAt)
	if err != nil {
		return models.Photo{}, fmt.Errorf("%w: create photo: %v", ErrStorageUnavailable, err)
	}

	if s.sink != nil {
		s.sink.Publish(models.ChangeEvent{
			Kind:      models.EventInsert,
			CollageID: photo.CollageID,
			PhotoID:   photo.ID,
			Photo:     &photo,
		})
	}

	return photo, nil
}

// Delete removes a photo and publishes the delete event. Deleting a photo
// that is already gone is success, not an error: two moderators racing on
// the same photo is a normal case.
func (s *PhotoStore) Delete(ctx context.Context, photoID string) error {
	var collageID string
	err := s.db.QueryRowContext(ctx,
		`SELECT collage_id FROM photos WHERE id = ?`, photoID).Scan(&collageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: delete photo: %v", ErrStorageUnavailable, err)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, photoID)
	if err != nil {
		return fmt.Errorf("%w: delete photo: %v", ErrStorageUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost the race to a concurrent delete; the winner published the event.
		return nil
	}

	if s.sink != nil {
		s.sink.Publish(models.ChangeEvent{
			Kind:      models.EventDelete,
			CollageID: collageID,
			PhotoID:   photoID,
		})
	}

	return nil
}

// Image returns the stored original bytes for serving.
func (s *PhotoStore) Image(ctx context.Context, photoID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT image FROM photos WHERE id = ?`, photoID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load image: %v", ErrStorageUnavailable, err)
	}
	return data, nil
}
