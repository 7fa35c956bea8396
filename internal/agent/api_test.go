package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClientMe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/me" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"invalid token"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"id":"u1","email":"a@example.com","defaultHourlyRate":25,"idleTimeoutSeconds":120}}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "good")
	user, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120, user.IdleTimeoutSeconds)
	assert.Equal(t, 25.0, user.DefaultHourlyRate)

	// A rejected credential reads as the auth sentinel, not a generic error.
	stale := NewAPIClient(server.URL, "stale")
	_, err = stale.Me(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
}
