// Package server exposes the collage API over HTTP: photo upload, listing,
// moderation deletes, image/thumbnail serving, and the /ws change-feed
// endpoint.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"photo-collage-app/internal/hub"
	"photo-collage-app/internal/storage"
	"photo-collage-app/internal/thumb"
)

const maxUploadBytes = 20 << 20

// Server holds the HTTP surface's collaborators.
type Server struct {
	store     *storage.PhotoStore
	feedHub   *hub.Hub
	thumbs    *thumb.Cache
	thumbSize uint
	upgrader  websocket.Upgrader
}

func New(store *storage.PhotoStore, feedHub *hub.Hub, thumbSize uint) *Server {
	return &Server{
		store:     store,
		feedHub:   feedHub,
		thumbs:    thumb.NewCache(),
		thumbSize: thumbSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // origin policy is enforced by the CORS layer
			},
		},
	}
}

// Handler builds the route table wrapped in CORS.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/collages/{id}/photos", s.handleUpload)
	mux.HandleFunc("GET /api/collages/{id}/photos", s.handleList)
	mux.HandleFunc("DELETE /api/photos/{id}", s.handleDelete)
	mux.HandleFunc("GET /photos/{id}", s.handleImage)
	mux.HandleFunc("GET /thumbnail/{id}", s.handleThumbnail)
	mux.HandleFunc("GET /ws", s.handleFeed)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	})
	return c.Handler(mux)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	collageID := r.PathValue("id")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
		return
	}

	photo, err := s.store.Create(r.Context(), collageID, body)
	if errors.Is(err, storage.ErrInvalidImage) {
		http.Error(w, "Not a valid image", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("server: upload failed", "collage", collageID, "error", err)
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(photo)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	collageID := r.PathValue("id")

	photos, err := s.store.List(r.Context(), collageID)
	if err != nil {
		slog.Error("server: list failed", "collage", collageID, "error", err)
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(photos)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	photoID := r.PathValue("id")

	if err := s.store.Delete(r.Context(), photoID); err != nil {
		slog.Error("server: delete failed", "photo", photoID, "error", err)
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}
	s.thumbs.Drop(photoID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	photoID := r.PathValue("id")

	data, err := s.store.Image(r.Context(), photoID)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	photoID := r.PathValue("id")

	if cached, ok := s.thumbs.Get(photoID); ok {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(cached)
		return
	}

	data, err := s.store.Image(r.Context(), photoID)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}

	thumbnail, err := thumb.Generate(data, s.thumbSize)
	if err != nil {
		http.Error(w, "Failed to generate thumbnail", http.StatusInternalServerError)
		return
	}
	s.thumbs.Put(photoID, thumbnail)

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(thumbnail)
}

// handleFeed upgrades the connection and hands it to the hub. The hub's
// register path sends the subscription confirmation frame.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	collageID := r.URL.Query().Get("collage")
	if collageID == "" {
		http.Error(w, "collage query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("server: websocket upgrade failed", "error", err)
		return
	}

	client := hub.NewClient(s.feedHub, conn, collageID)
	s.feedHub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
