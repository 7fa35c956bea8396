package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "timetrack/internal/errors"
	"timetrack/internal/model"
)

type staticVerifier struct {
	tokens map[string]string
}

func (v staticVerifier) ParseToken(token string) (string, *apperrors.APIError) {
	userID, ok := v.tokens[token]
	if !ok {
		return "", apperrors.Unauthorized("invalid or expired token")
	}
	return userID, nil
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(staticVerifier{tokens: map[string]string{
		"alice-token": "alice",
		"bob-token":   "bob",
	}}, nil)
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	t.Cleanup(hub.CloseAll)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) model.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event model.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestHubBroadcastReachesAllUserConnections(t *testing.T) {
	hub, server := newTestHub(t)

	// Two devices on the same account; the originator is not exempt.
	first := dial(t, server, "alice-token")
	second := dial(t, server, "alice-token")

	assert.Eventually(t, func() bool {
		return hub.ConnectionCount("alice") == 2
	}, 2*time.Second, 10*time.Millisecond)

	entry := &model.TimeEntry{ID: "e1", UserID: "alice", IsRunning: true, StartTime: time.Now().UTC()}
	hub.Broadcast("alice", model.NewEvent(model.EventTimeEntryStarted, entry))

	for _, conn := range []*websocket.Conn{first, second} {
		event := readEvent(t, conn)
		assert.Equal(t, model.EventTimeEntryStarted, event.Name)
		got, err := event.TimeEntry()
		require.NoError(t, err)
		assert.Equal(t, "e1", got.ID)
		assert.True(t, got.IsRunning)
	}
}

func TestHubBroadcastIsScopedToUser(t *testing.T) {
	hub, server := newTestHub(t)

	alice := dial(t, server, "alice-token")
	bob := dial(t, server, "bob-token")

	assert.Eventually(t, func() bool {
		return hub.ConnectionCount("alice") == 1 && hub.ConnectionCount("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast("alice", model.NewEvent(model.EventTimeEntryDeleted, model.DeletedPayload{ID: "e1"}))

	event := readEvent(t, alice)
	assert.Equal(t, model.EventTimeEntryDeleted, event.Name)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var stray model.Event
	err := bob.ReadJSON(&stray)
	assert.Error(t, err, "bob must not see alice's events")
}

func TestHubRejectsBadCredential(t *testing.T) {
	_, server := newTestHub(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	for name, header := range map[string]http.Header{
		"missing token": nil,
		"invalid token": {"Authorization": []string{"Bearer nope"}},
	} {
		conn, resp, err := websocket.DefaultDialer.Dial(url, header)
		require.Error(t, err, name)
		require.NotNil(t, resp, name)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, name)
		_ = resp.Body.Close()
		if conn != nil {
			_ = conn.Close()
		}
	}
}

func TestHubAcceptsQueryToken(t *testing.T) {
	hub, server := newTestHub(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?token=alice-token"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	assert.Eventually(t, func() bool {
		return hub.ConnectionCount("alice") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub, server := newTestHub(t)

	conn := dial(t, server, "alice-token")
	assert.Eventually(t, func() bool {
		return hub.ConnectionCount("alice") == 1
	}, 2*time.Second, 10*time.Millisecond)

	_ = conn.Close()
	assert.Eventually(t, func() bool {
		return hub.ConnectionCount("alice") == 0
	}, 2*time.Second, 10*time.Millisecond)
}
