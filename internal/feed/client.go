// Package feed is the viewer side of the change feed: a WebSocket client
// that subscribes to one collage's insert/delete stream and keeps redialing
// until it is explicitly closed.
//
// The client is a thin transport shim. It validates frames into tagged
// events and reports connection-state transitions, but it does not
// deduplicate redelivered events; that is the sync controller's job.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"photo-collage-app/internal/models"
)

const (
	defaultConfirmTimeout = 6 * time.Second
	defaultBackoffBase    = 1 * time.Second
	defaultBackoffCap     = 30 * time.Second

	pongWait = 60 * time.Second
)

// ErrSubscriptionTimedOut reports that the server accepted the connection
// but never confirmed the subscription within the configured window.
var ErrSubscriptionTimedOut = errors.New("feed: subscription confirmation timed out")

// Config tunes one feed source. Zero values fall back to defaults.
type Config struct {
	// URL is the server base, e.g. "ws://example.com"; the client appends
	// the /ws endpoint itself.
	URL string

	ConfirmTimeout time.Duration
	BackoffBase    time.Duration
	BackoffCap     time.Duration

	Dialer *websocket.Dialer
}

func (c Config) withDefaults() Config {
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = defaultConfirmTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaultBackoffCap
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	return c
}

// EventFunc receives every validated event, duplicates included.
type EventFunc func(models.ChangeEvent)

// StateFunc receives transport state transitions. err carries the cause of
// a Disconnected transition; errors.Is(err, ErrSubscriptionTimedOut)
// distinguishes a confirmation timeout from an ordinary drop.
type StateFunc func(state models.ConnectionState, err error)

// Source creates feed subscriptions against one server.
type Source struct {
	cfg Config
}

func NewSource(cfg Config) *Source {
	return &Source{cfg: cfg.withDefaults()}
}

// Handle is one live subscription. Close is idempotent, safe from any
// goroutine, and guarantees no callbacks fire after it returns.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
}

func (h *Handle) Close() {
	h.once.Do(func() {
		h.cancel()
		h.closeConn()
	})
	<-h.done
}

func (h *Handle) setConn(conn *websocket.Conn) {
	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()
}

// closeConn unblocks a pending ReadMessage so the run loop can observe
// cancellation promptly.
func (h *Handle) closeConn() {
	h.mu.Lock()
	if h.conn != nil {
		h.conn.Close()
	}
	h.mu.Unlock()
}

// Subscribe starts the feed for one collage. The callbacks are invoked from
// a single goroutine, in order, until Close.
func (s *Source) Subscribe(ctx context.Context, collageID string, onEvent EventFunc, onState StateFunc) (*Handle, error) {
	if collageID == "" {
		return nil, errors.New("feed: collage id required")
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go s.run(ctx, h, collageID, onEvent, onState)
	return h, nil
}

func (s *Source) run(ctx context.Context, h *Handle, collageID string, onEvent EventFunc, onState StateFunc) {
	defer close(h.done)

	endpoint := s.cfg.URL + "/ws?collage=" + url.QueryEscape(collageID)
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}
		onState(models.StateConnecting, nil)

		conn, _, err := s.cfg.Dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			delay := backoffDelay(attempt, s.cfg.BackoffBase, s.cfg.BackoffCap)
			slog.Warn("feed: dial failed", "collage", collageID, "attempt", attempt, "delay", delay, "error", err)
			onState(models.StateDisconnected, err)
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}
		h.setConn(conn)

		if err := awaitConfirm(conn, s.cfg.ConfirmTimeout); err != nil {
			conn.Close()
			h.setConn(nil)
			if ctx.Err() != nil {
				return
			}
			attempt++
			slog.Warn("feed: subscription not confirmed", "collage", collageID, "error", err)
			onState(models.StateDisconnected, err)
			if !sleepCtx(ctx, backoffDelay(attempt, s.cfg.BackoffBase, s.cfg.BackoffCap)) {
				return
			}
			continue
		}

		attempt = 0
		slog.Info("feed: live", "collage", collageID)
		onState(models.StateLive, nil)

		err = readLoop(conn, collageID, onEvent)
		conn.Close()
		h.setConn(nil)
		if ctx.Err() != nil {
			return
		}
		attempt++
		slog.Warn("feed: connection lost", "collage", collageID, "error", err)
		onState(models.StateDisconnected, err)
		if !sleepCtx(ctx, backoffDelay(attempt, s.cfg.BackoffBase, s.cfg.BackoffCap)) {
			return
		}
	}
}

// awaitConfirm blocks until the server's subscription confirmation frame
// arrives, or the confirmation window closes.
func awaitConfirm(conn *websocket.Conn, timeout time.Duration) error {
	conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return ErrSubscriptionTimedOut
			}
			return err
		}

		var msg models.FeedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == models.MSG_SUBSCRIBED {
			return nil
		}
	}
}

func readLoop(conn *websocket.Conn, collageID string, onEvent EventFunc) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg models.FeedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("feed: discarding unparseable frame", "collage", collageID, "error", err)
			continue
		}
		if msg.Type == models.MSG_SUBSCRIBED {
			continue
		}
		ev, ok := msg.Event()
		if !ok {
			slog.Warn("feed: discarding malformed event", "collage", collageID, "type", msg.Type)
			continue
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		onEvent(ev)
	}
}
