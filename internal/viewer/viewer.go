// Package viewer assembles one complete collage view: the sync session,
// its change-feed subscription, and the moderation gateway, all owned
// together and torn down together. Construct one per open view.
package viewer

import (
	"context"
	"strings"

	"photo-collage-app/internal/apiclient"
	"photo-collage-app/internal/collagesync"
	"photo-collage-app/internal/config"
	"photo-collage-app/internal/feed"
	"photo-collage-app/internal/moderation"
)

// Viewer is one open collage view's engine state.
type Viewer struct {
	Session    *collagesync.Session
	Moderation *moderation.Gateway
}

// Open connects a view to a collage server and starts synchronizing.
// serverURL is the HTTP base, e.g. "http://example.com".
func Open(ctx context.Context, serverURL, collageID string, cfg *config.Config, obs collagesync.Observer) *Viewer {
	api := apiclient.New(serverURL)

	src := feed.NewSource(feed.Config{
		URL:            wsBase(serverURL),
		ConfirmTimeout: cfg.Sync.ConfirmTimeout.Std(),
		BackoffBase:    cfg.Sync.BackoffBase.Std(),
		BackoffCap:     cfg.Sync.BackoffCap.Std(),
	})

	session := collagesync.NewSession(collagesync.Config{
		CollageID:   collageID,
		Capacity:    cfg.Sync.SlotCapacity,
		PollTight:   cfg.Sync.PollTight.Std(),
		PollRelaxed: cfg.Sync.PollRelaxed.Std(),
		MaxSilence:  cfg.Sync.MaxSilence.Std(),
	}, api, collagesync.WrapFeed(src), obs)

	gateway := moderation.NewGateway(api, session)
	session.SetPending(gateway)
	session.Start(ctx)

	return &Viewer{Session: session, Moderation: gateway}
}

// Close tears the view down; no observer callbacks fire after it returns.
func (v *Viewer) Close() {
	v.Session.Close()
}

func wsBase(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	}
	return serverURL
}
