// Package collagesync keeps one viewer's in-memory photo set for a collage
// converged with the authoritative repository, merging three inputs: the
// initial full list, change-feed events, and fallback polling. Every merge
// feeds the slot assigner so display positions stay stable while the
// collection churns.
package collagesync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"photo-collage-app/internal/feed"
	"photo-collage-app/internal/models"
	"photo-collage-app/internal/slots"
)

// Repository is the slice of the photo store a session needs.
type Repository interface {
	List(ctx context.Context, collageID string) ([]models.Photo, error)
}

// FeedHandle is a live feed subscription owned by the session.
type FeedHandle interface {
	Close()
}

// FeedSource creates feed subscriptions. *feed.Source satisfies it via
// WrapFeed; tests inject fakes.
type FeedSource interface {
	Subscribe(ctx context.Context, collageID string,
		onEvent func(models.ChangeEvent),
		onState func(models.ConnectionState, error)) (FeedHandle, error)
}

// PendingTracker lets the session clear a photo's pending-delete marker the
// moment its delete is confirmed by the feed or a poll.
type PendingTracker interface {
	Clear(photoID string) bool
}

// Observer receives session updates. Callbacks run on the session's merge
// goroutine, strictly ordered, never concurrently, and never after Close
// returns. The slot mapping published after a merge only references photos
// in the photo set published just before it.
type Observer struct {
	OnPhotoSet        func([]models.Photo)
	OnSlotMapping     func(map[string]int)
	OnConnectionState func(models.ConnectionState)
}

// Config tunes one session. Zero durations fall back to defaults; the
// defaults are starting points, not load-tested truths, which is why they
// are configuration in the first place.
type Config struct {
	CollageID string
	Capacity  int

	// PollTight is the fallback poll interval while the feed is not
	// confirmed live (default 2s). PollRelaxed is the safety-net interval
	// while live (default 30s).
	PollTight   time.Duration
	PollRelaxed time.Duration

	// MaxSilence is how long a live feed may stay completely quiet before
	// the session stops trusting it and re-enters degraded polling
	// (default 10s).
	MaxSilence time.Duration

	// RetryBase/RetryCap bound the backoff for the initial list call.
	RetryBase time.Duration
	RetryCap  time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollTight <= 0 {
		c.PollTight = 2 * time.Second
	}
	if c.PollRelaxed <= 0 {
		c.PollRelaxed = 30 * time.Second
	}
	if c.MaxSilence <= 0 {
		c.MaxSilence = 10 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 1 * time.Second
	}
	if c.RetryCap <= 0 {
		c.RetryCap = 30 * time.Second
	}
	return c
}

// Session is one collage view's synchronization state. One Session per open
// view; sessions share nothing, viewers converge through the backing store.
type Session struct {
	cfg     Config
	repo    Repository
	feeds   FeedSource
	obs     Observer
	pending PendingTracker

	ctx    context.Context
	cancel context.CancelFunc
	ops    chan func()
	done   chan struct{}
	once   sync.Once

	// Everything below is owned by the run goroutine.
	photos       map[string]models.Photo
	order        []string
	assigner     *slots.Assigner
	capacity     int
	mode         models.ConnectionState
	feedState    models.ConnectionState
	handle       FeedHandle
	pollTimer    *time.Timer
	silenceTimer *time.Timer
	pollInFlight bool
	published    bool

	snapMu     sync.RWMutex
	snapPhotos []models.Photo
	snapSlots  map[string]int
	snapState  models.ConnectionState
}

// NewSession builds a session; Start launches it.
func NewSession(cfg Config, repo Repository, feeds FeedSource, obs Observer) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		cfg:      cfg,
		repo:     repo,
		feeds:    feeds,
		obs:      obs,
		ops:      make(chan func(), 256),
		done:     make(chan struct{}),
		photos:   make(map[string]models.Photo),
		assigner: slots.NewAssigner(),
		capacity: cfg.Capacity,
	}
}

// SetPending wires the moderation gateway's pending-delete set. Must be
// called before Start.
func (s *Session) SetPending(p PendingTracker) {
	s.pending = p
}

// Start launches the session's merge goroutine. The context bounds the
// whole session; Close is equivalent to cancelling it and waiting.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.cancel = cancel
	go s.run(ctx)
}

// Close tears the session down: feed subscription, timers, everything. It
// is idempotent, safe from any goroutine, and no observer callback fires
// after it returns.
func (s *Session) Close() {
	if s.cancel == nil {
		return
	}
	s.once.Do(func() { s.cancel() })
	<-s.done
}

// Refresh enqueues an immediate reconciling poll.
func (s *Session) Refresh() {
	s.enqueue(func() { s.startPoll() })
}

// SetCapacity applies a runtime slot-capacity change.
func (s *Session) SetCapacity(n int) {
	s.enqueue(func() {
		if n == s.capacity {
			return
		}
		s.capacity = n
		s.publish()
	})
}

// RemoveLocal optimistically removes a photo from the local view before the
// delete round trip is confirmed. The authoritative removal still arrives
// via the feed or a poll and is then a no-op.
func (s *Session) RemoveLocal(photoID string) {
	s.enqueue(func() {
		if s.removePhoto(photoID) {
			s.publish()
		}
	})
}

// Photos returns the most recently published photo set.
func (s *Session) Photos() []models.Photo {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return append([]models.Photo(nil), s.snapPhotos...)
}

// Slots returns the most recently published slot mapping.
func (s *Session) Slots() map[string]int {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	out := make(map[string]int, len(s.snapSlots))
	for id, slot := range s.snapSlots {
		out[id] = slot
	}
	return out
}

// ConnState returns the session's current connection state.
func (s *Session) ConnState() models.ConnectionState {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapState
}

func (s *Session) enqueue(fn func()) {
	if s.ctx == nil {
		return
	}
	select {
	case s.ops <- fn:
	case <-s.ctx.Done():
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if s.handle != nil {
			s.handle.Close()
		}
	}()

	if !s.initialize(ctx) {
		return
	}

	s.setMode(models.StateConnecting)
	s.subscribeFeed(ctx)

	s.pollTimer = time.NewTimer(s.pollInterval())
	s.silenceTimer = time.NewTimer(s.cfg.MaxSilence)
	defer s.pollTimer.Stop()
	defer s.silenceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case fn := <-s.ops:
			fn()

		case <-s.pollTimer.C:
			s.startPoll()
			s.pollTimer.Reset(s.pollInterval())

		case <-s.silenceTimer.C:
			if s.mode == models.StateLive {
				slog.Warn("sync: feed silent beyond threshold, degrading",
					"collage", s.cfg.CollageID, "max_silence", s.cfg.MaxSilence)
				s.setMode(models.StateDegraded)
				s.startPoll()
			}
			s.silenceTimer.Reset(s.cfg.MaxSilence)
		}
	}
}

// initialize runs the first full list with backoff until it succeeds.
func (s *Session) initialize(ctx context.Context) bool {
	delay := s.cfg.RetryBase
	for {
		photos, err := s.repo.List(ctx, s.cfg.CollageID)
		if err == nil {
			s.mergeSnapshot(photos)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		slog.Warn("sync: initial list failed, retrying",
			"collage", s.cfg.CollageID, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false
		}
		delay *= 2
		if delay > s.cfg.RetryCap {
			delay = s.cfg.RetryCap
		}
	}
}

func (s *Session) subscribeFeed(ctx context.Context) {
	onEvent := func(ev models.ChangeEvent) {
		s.enqueue(func() { s.applyEvent(ev) })
	}
	onState := func(state models.ConnectionState, err error) {
		s.enqueue(func() { s.applyFeedState(state, err) })
	}

	handle, err := s.feeds.Subscribe(ctx, s.cfg.CollageID, onEvent, onState)
	if err != nil {
		// Nothing to retry here: Subscribe only fails on caller error. The
		// session still converges through polling alone.
		slog.Error("sync: feed subscribe failed, polling only",
			"collage", s.cfg.CollageID, "error", err)
		s.setMode(models.StateDegraded)
		return
	}
	s.handle = handle
}

func (s *Session) applyEvent(ev models.ChangeEvent) {
	s.resetSilence()
	if s.mode == models.StateDegraded && s.feedState == models.StateLive {
		// The feed proved it is alive again.
		s.setMode(models.StateLive)
	}

	switch ev.Kind {
	case models.EventInsert:
		if _, ok := s.photos[ev.PhotoID]; ok || ev.Photo == nil {
			return
		}
		s.photos[ev.PhotoID] = *ev.Photo
		s.order = append(s.order, ev.PhotoID)
		s.publish()

	case models.EventDelete:
		if !s.removePhoto(ev.PhotoID) {
			return
		}
		s.publish()
	}
}

func (s *Session) applyFeedState(state models.ConnectionState, err error) {
	s.feedState = state
	switch state {
	case models.StateLive:
		s.resetSilence()
		s.setMode(models.StateLive)
	case models.StateDisconnected:
		if errors.Is(err, feed.ErrSubscriptionTimedOut) {
			slog.Warn("sync: feed confirmation timed out", "collage", s.cfg.CollageID)
		} else if err != nil {
			slog.Warn("sync: feed disconnected", "collage", s.cfg.CollageID, "error", err)
		}
		s.setMode(models.StateDegraded)
	case models.StateConnecting:
		// Transport redial in progress; the session stays in whatever mode
		// it is in until the outcome is known.
	}
}

// startPoll kicks off a reconciling list in the background; the result
// re-enters the merge loop like any other input.
func (s *Session) startPoll() {
	if s.pollInFlight {
		return
	}
	s.pollInFlight = true

	go func() {
		photos, err := s.repo.List(s.ctx, s.cfg.CollageID)
		s.enqueue(func() {
			s.pollInFlight = false
			if err != nil {
				if s.ctx.Err() == nil {
					slog.Warn("sync: poll failed", "collage", s.cfg.CollageID, "error", err)
				}
				return
			}
			s.mergeSnapshot(photos)
		})
	}()
}

// mergeSnapshot reconciles the local set against an authoritative list in
// both directions: photos missing locally are added, photos missing from
// the list are dropped. This is what repairs any event the feed lost.
func (s *Session) mergeSnapshot(list []models.Photo) {
	changed := false
	present := make(map[string]struct{}, len(list))
	for _, p := range list {
		if _, dup := present[p.ID]; dup {
			continue
		}
		present[p.ID] = struct{}{}
		if _, ok := s.photos[p.ID]; !ok {
			s.photos[p.ID] = p
			s.order = append(s.order, p.ID)
			changed = true
		}
	}

	for id := range s.photos {
		if _, ok := present[id]; ok {
			continue
		}
		s.removePhoto(id)
		changed = true
	}

	if changed || !s.published {
		s.publish()
	}
}

func (s *Session) removePhoto(photoID string) bool {
	if _, ok := s.photos[photoID]; !ok {
		return false
	}
	delete(s.photos, photoID)
	for i, id := range s.order {
		if id == photoID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.pending != nil {
		s.pending.Clear(photoID)
	}
	return true
}

// publish runs the slot assigner and notifies observers, photo set first so
// the mapping never references a photo the observer has not seen.
func (s *Session) publish() {
	list := make([]models.Photo, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.photos[id])
	}
	mapping := s.assigner.Assign(list, s.capacity)

	s.snapMu.Lock()
	s.snapPhotos = list
	s.snapSlots = mapping
	s.snapMu.Unlock()
	s.published = true

	if s.obs.OnPhotoSet != nil {
		s.obs.OnPhotoSet(append([]models.Photo(nil), list...))
	}
	if s.obs.OnSlotMapping != nil {
		s.obs.OnSlotMapping(mapping)
	}
}

func (s *Session) setMode(state models.ConnectionState) {
	if state == s.mode {
		return
	}
	s.mode = state
	s.snapMu.Lock()
	s.snapState = state
	s.snapMu.Unlock()

	slog.Info("sync: connection state changed", "collage", s.cfg.CollageID, "state", state)
	s.resetPollTimer()
	if s.obs.OnConnectionState != nil {
		s.obs.OnConnectionState(state)
	}
}

func (s *Session) pollInterval() time.Duration {
	if s.mode == models.StateLive {
		return s.cfg.PollRelaxed
	}
	return s.cfg.PollTight
}

func (s *Session) resetPollTimer() {
	if s.pollTimer == nil {
		return
	}
	if !s.pollTimer.Stop() {
		select {
		case <-s.pollTimer.C:
		default:
		}
	}
	s.pollTimer.Reset(s.pollInterval())
}

func (s *Session) resetSilence() {
	if s.silenceTimer == nil {
		return
	}
	if !s.silenceTimer.Stop() {
		select {
		case <-s.silenceTimer.C:
		default:
		}
	}
	s.silenceTimer.Reset(s.cfg.MaxSilence)
}
