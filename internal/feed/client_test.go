package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-collage-app/internal/models"
)

const (
	testWait = 3 * time.Second
	testTick = 5 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feedServer scripts the server side of one collage feed.
type feedServer struct {
	t       *testing.T
	srv     *httptest.Server
	handler func(conn *websocket.Conn, attempt int)
	dials   atomic.Int32
}

func newFeedServer(t *testing.T, handler func(conn *websocket.Conn, attempt int)) *feedServer {
	fs := &feedServer{t: t, handler: handler}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ws", r.URL.Path)
		require.Equal(t, "c1", r.URL.Query().Get("collage"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		attempt := int(fs.dials.Add(1))
		fs.handler(conn, attempt)
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *feedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func confirm(t *testing.T, conn *websocket.Conn) {
	writeFrame(t, conn, &models.FeedMessage{Type: models.MSG_SUBSCRIBED, CollageID: "c1"})
}

func writeFrame(t *testing.T, conn *websocket.Conn, msg *models.FeedMessage) {
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	conn.WriteMessage(websocket.TextMessage, raw)
}

type feedRecorder struct {
	mu     sync.Mutex
	events []models.ChangeEvent
	states []models.ConnectionState
	errs   []error
}

func (r *feedRecorder) onEvent(ev models.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *feedRecorder) onState(state models.ConnectionState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	r.errs = append(r.errs, err)
}

func (r *feedRecorder) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *feedRecorder) sawState(want models.ConnectionState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s == want {
			return true
		}
	}
	return false
}

func (r *feedRecorder) stateCount(want models.ConnectionState) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == want {
			n++
		}
	}
	return n
}

func (r *feedRecorder) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.errs) - 1; i >= 0; i-- {
		if r.errs[i] != nil {
			return r.errs[i]
		}
	}
	return nil
}

func testSource(url string) *Source {
	return NewSource(Config{
		URL:            url,
		ConfirmTimeout: 150 * time.Millisecond,
		BackoffBase:    10 * time.Millisecond,
		BackoffCap:     40 * time.Millisecond,
	})
}

func TestClient_DeliversValidatedEvents(t *testing.T) {
	hold := make(chan struct{})
	fs := newFeedServer(t, func(conn *websocket.Conn, attempt int) {
		confirm(t, conn)
		p := &models.Photo{ID: "p1", CollageID: "c1", URL: "/photos/p1"}
		writeFrame(t, conn, &models.FeedMessage{Type: models.MSG_PHOTO_INSERT, CollageID: "c1", Photo: p})
		writeFrame(t, conn, &models.FeedMessage{Type: models.MSG_PHOTO_DELETE, CollageID: "c1", PhotoID: "p1"})
		<-hold
		conn.Close()
	})
	defer close(hold)

	rec := &feedRecorder{}
	h, err := testSource(fs.wsURL()).Subscribe(context.Background(), "c1", rec.onEvent, rec.onState)
	require.NoError(t, err)
	defer h.Close()

	require.Eventually(t, func() bool { return rec.eventCount() == 2 }, testWait, testTick)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, models.EventInsert, rec.events[0].Kind)
	assert.Equal(t, "p1", rec.events[0].PhotoID)
	require.NotNil(t, rec.events[0].Photo)
	assert.Equal(t, models.EventDelete, rec.events[1].Kind)
	assert.Equal(t, "p1", rec.events[1].PhotoID)
	assert.Equal(t, []models.ConnectionState{models.StateConnecting, models.StateLive}, rec.states)
}

func TestClient_MalformedFramesAreDropped(t *testing.T) {
	hold := make(chan struct{})
	fs := newFeedServer(t, func(conn *websocket.Conn, attempt int) {
		confirm(t, conn)
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		// insert without a photo payload: invalid tagged event
		writeFrame(t, conn, &models.FeedMessage{Type: models.MSG_PHOTO_INSERT, CollageID: "c1"})
		writeFrame(t, conn, &models.FeedMessage{Type: "unknown.type", CollageID: "c1"})
		writeFrame(t, conn, &models.FeedMessage{Type: models.MSG_PHOTO_DELETE, CollageID: "c1", PhotoID: "p9"})
		<-hold
		conn.Close()
	})
	defer close(hold)

	rec := &feedRecorder{}
	h, err := testSource(fs.wsURL()).Subscribe(context.Background(), "c1", rec.onEvent, rec.onState)
	require.NoError(t, err)
	defer h.Close()

	require.Eventually(t, func() bool { return rec.eventCount() == 1 }, testWait, testTick)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "p9", rec.events[0].PhotoID)
}

func TestClient_ConfirmationTimeout(t *testing.T) {
	hold := make(chan struct{})
	fs := newFeedServer(t, func(conn *websocket.Conn, attempt int) {
		// Accept the connection but never confirm.
		<-hold
		conn.Close()
	})
	defer close(hold)

	rec := &feedRecorder{}
	h, err := testSource(fs.wsURL()).Subscribe(context.Background(), "c1", rec.onEvent, rec.onState)
	require.NoError(t, err)
	defer h.Close()

	require.Eventually(t, func() bool {
		return rec.sawState(models.StateDisconnected)
	}, testWait, testTick)
	assert.ErrorIs(t, rec.lastErr(), ErrSubscriptionTimedOut)
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	hold := make(chan struct{})
	fs := newFeedServer(t, func(conn *websocket.Conn, attempt int) {
		confirm(t, conn)
		if attempt == 1 {
			conn.Close() // server restart
			return
		}
		p := &models.Photo{ID: "p2", CollageID: "c1"}
		writeFrame(t, conn, &models.FeedMessage{Type: models.MSG_PHOTO_INSERT, CollageID: "c1", Photo: p})
		<-hold
		conn.Close()
	})
	defer close(hold)

	rec := &feedRecorder{}
	h, err := testSource(fs.wsURL()).Subscribe(context.Background(), "c1", rec.onEvent, rec.onState)
	require.NoError(t, err)
	defer h.Close()

	require.Eventually(t, func() bool { return rec.eventCount() == 1 }, testWait, testTick)
	assert.GreaterOrEqual(t, rec.stateCount(models.StateLive), 2, "live, dropped, live again")
	assert.GreaterOrEqual(t, rec.stateCount(models.StateDisconnected), 1)
}

func TestClient_CloseStopsCallbacks(t *testing.T) {
	fs := newFeedServer(t, func(conn *websocket.Conn, attempt int) {
		confirm(t, conn)
		p := &models.Photo{ID: "p1", CollageID: "c1"}
		for {
			raw, err := json.Marshal(&models.FeedMessage{Type: models.MSG_PHOTO_INSERT, CollageID: "c1", Photo: p})
			require.NoError(t, err)
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	})

	rec := &feedRecorder{}
	h, err := testSource(fs.wsURL()).Subscribe(context.Background(), "c1", rec.onEvent, rec.onState)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.eventCount() > 0 }, testWait, testTick)

	h.Close()
	n := rec.eventCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, rec.eventCount(), "no events delivered after Close returns")

	h.Close() // idempotent
}

func TestBackoffDelay_BoundedWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	max := 800 * time.Millisecond
	for attempt := 1; attempt <= 12; attempt++ {
		ceiling := base << (attempt - 1)
		if ceiling > max || ceiling <= 0 {
			ceiling = max
		}
		for i := 0; i < 50; i++ {
			d := backoffDelay(attempt, base, max)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, ceiling)
		}
	}
}
