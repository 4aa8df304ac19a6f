// Package moderation issues authenticated photo deletes on behalf of the
// moderation UI and tracks which deletes are still in flight, so rapid
// repeated clicks cannot double-submit and the UI can show a per-photo busy
// state.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"photo-collage-app/internal/storage"
)

// Deleter is the slice of the photo repository the gateway needs.
type Deleter interface {
	Delete(ctx context.Context, photoID string) error
}

// LocalRemover applies an optimistic removal to the moderator's own view;
// every other viewer gets the removal through the change feed.
type LocalRemover interface {
	RemoveLocal(photoID string)
}

// Gateway coordinates delete requests for one session. It never mutates the
// shared photo set itself; the session's normal event/poll path stays the
// single source of truth.
type Gateway struct {
	repo Deleter
	view LocalRemover

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewGateway(repo Deleter, view LocalRemover) *Gateway {
	return &Gateway{
		repo:    repo,
		view:    view,
		pending: make(map[string]struct{}),
	}
}

// RequestDelete submits a delete for a photo. A photo whose delete is
// already in flight is a no-op. "Not found" counts as success: another
// moderator got there first and the photo is gone either way. Only
// transient storage failures are returned, and those leave the photo
// visible for a retry.
func (g *Gateway) RequestDelete(ctx context.Context, photoID string) error {
	g.mu.Lock()
	if _, inFlight := g.pending[photoID]; inFlight {
		g.mu.Unlock()
		return nil
	}
	g.pending[photoID] = struct{}{}
	g.mu.Unlock()

	err := g.repo.Delete(ctx, photoID)
	g.Clear(photoID)

	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete photo %s: %w", photoID, err)
	}

	if g.view != nil {
		g.view.RemoveLocal(photoID)
	}
	return nil
}

// Pending reports whether a delete for the photo is in flight; the UI
// renders this as a busy spinner.
func (g *Gateway) Pending(photoID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[photoID]
	return ok
}

// PendingIDs returns all in-flight deletes.
func (g *Gateway) PendingIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.pending))
	for id := range g.pending {
		ids = append(ids, id)
	}
	return ids
}

// Clear drops the pending marker for a photo. The session also calls this
// when a delete is confirmed by the feed or a poll, which covers deletes
// submitted by other moderators. Implements collagesync.PendingTracker.
func (g *Gateway) Clear(photoID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pending[photoID]; !ok {
		return false
	}
	delete(g.pending, photoID)
	return true
}
