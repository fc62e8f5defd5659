package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/VitalSync/health_layer/internal/logging"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
}

func dial(t *testing.T, srv *httptest.Server, user string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func TestHubPublishToUser(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub(nil, logging.Discard())
	require.NoError(t, hub.Start(context.Background()))
	srv := newTestServer(t, hub)
	defer srv.Close()

	alice := dial(t, srv, "alice", nil)
	defer alice.Close()
	bob := dial(t, srv, "bob", nil)
	defer bob.Close()

	require.Eventually(t, func() bool {
		return hub.Connections("alice") == 1 && hub.Connections("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	n := hub.Publish("alice", Event{Type: "notification", Data: map[string]string{"title": "Take metformin"}})
	assert.Equal(t, 1, n)

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, "notification", got.Type)
	assert.Equal(t, "Take metformin", got.Data["title"])

	assert.Equal(t, 0, hub.Publish("carol", Event{Type: "notification"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Stop(ctx))
	assert.Equal(t, 0, hub.Connections("alice"))

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := bob.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHubClientDisconnectUnregisters(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub(nil, logging.Discard())
	srv := newTestServer(t, hub)
	defer srv.Close()

	conn := dial(t, srv, "alice", nil)
	require.Eventually(t, func() bool { return hub.Connections("alice") == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections("alice") == 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Stop(context.Background()))
}

func TestHubRejectsUnknownOrigin(t *testing.T) {
	hub := NewHub([]string{"https://app.example.com"}, logging.Discard())
	srv := newTestServer(t, hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=alice"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	ok := dial(t, srv, "alice", http.Header{"Origin": {"https://app.example.com/"}})
	ok.Close()
	require.NoError(t, hub.Stop(context.Background()))
}

func TestHubRefusesAfterStop(t *testing.T) {
	hub := NewHub(nil, logging.Discard())
	require.NoError(t, hub.Stop(context.Background()))
	assert.Error(t, hub.Start(context.Background()))

	rec := httptest.NewRecorder()
	hub.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/", nil), "alice")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHubStopWaitsForPumpsOfRegisteredClient(t *testing.T) {
	hub := NewHub(nil, logging.Discard())
	require.NoError(t, hub.Start(context.Background()))

	c := &client{hub: hub, userID: "alice", send: make(chan []byte, 1), done: make(chan struct{})}
	require.True(t, hub.register(c))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, hub.Stop(ctx), context.DeadlineExceeded, "pumps are counted before they start")

	hub.wg.Done()
	hub.wg.Done()
	require.NoError(t, hub.Stop(context.Background()))
}
