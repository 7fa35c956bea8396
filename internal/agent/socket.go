package agent

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"timetrack/internal/model"
)

// EventSource delivers server push events. Connect blocks until the
// transport is established; the returned channel closes when it drops.
type EventSource interface {
	Connect(ctx context.Context) (<-chan model.Event, error)
}

// WebsocketSource subscribes to the backend's /ws endpoint.
type WebsocketSource struct {
	url   string
	token func() string
}

// NewWebsocketSource builds a source for the given http(s) base URL. The
// token is re-read on every connect so a refreshed credential takes effect
// on the next attempt.
func NewWebsocketSource(baseURL string, token func() string) *WebsocketSource {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws"
	return &WebsocketSource{url: wsURL, token: token}
}

func (s *WebsocketSource) Connect(ctx context.Context) (<-chan model.Event, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token())

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrAuth
		}
		return nil, err
	}

	events := make(chan model.Event, 64)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	go func() {
		defer close(events)
		defer conn.Close()

		for {
			var event model.Event
			if err := conn.ReadJSON(&event); err != nil {
				if ctx.Err() == nil && !errors.Is(err, websocket.ErrCloseSent) {
					log.Printf("websocket read: %v", err)
				}
				return
			}
			if event.Name == "" {
				// Undecodable frames are a validation problem, not a
				// reason to tear the transport down.
				log.Printf("websocket: dropping unnamed event")
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
