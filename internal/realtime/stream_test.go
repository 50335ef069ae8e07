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
)

func TestStreamSendsSyncThenPublishedEvents(t *testing.T) {
	broker := NewMemoryBroker()
	streamer := NewStreamer(broker, time.Hour, "*")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamer.Serve(w, r, "usr_a", func(context.Context) (any, error) {
			return map[string]int{"unreadMessages": 2}, nil
		})
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, EventSync, first.Type)
	assert.JSONEq(t, `{"unreadMessages":2}`, string(first.Data))

	// The subscription is registered before the first sync is written.
	event, err := NewEvent(EventNotificationCreated, map[string]string{"id": "ntf_1"})
	require.NoError(t, err)
	require.NoError(t, broker.Publish(context.Background(), "usr_a", event))

	var second Event
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, EventNotificationCreated, second.Type)
}

func TestStreamRejectsForeignOrigin(t *testing.T) {
	streamer := NewStreamer(NewMemoryBroker(), time.Hour, "https://moai.example")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamer.Serve(w, r, "usr_a", nil)
	}))
	defer server.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
