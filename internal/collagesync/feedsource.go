package collagesync

import (
	"context"

	"photo-collage-app/internal/feed"
	"photo-collage-app/internal/models"
)

// WrapFeed adapts a concrete feed source to the session's FeedSource
// interface.
func WrapFeed(src *feed.Source) FeedSource {
	return feedSource{src: src}
}

type feedSource struct {
	src *feed.Source
}

func (f feedSource) Subscribe(ctx context.Context, collageID string,
	onEvent func(models.ChangeEvent),
	onState func(models.ConnectionState, error)) (FeedHandle, error) {
	return f.src.Subscribe(ctx, collageID, feed.EventFunc(onEvent), feed.StateFunc(onState))
}
