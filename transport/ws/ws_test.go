package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/kirides/sensor-relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type update struct {
	Type string        `json:"type"`
	Data relay.Payload `json:"data"`
}

func readUpdate(t *testing.T, ctx context.Context, conn *websocket.Conn) update {
	t.Helper()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)

	var u update
	require.NoError(t, json.Unmarshal(data, &u))
	return u
}

func TestViewerReceivesJoinSnapshotThenUpdates(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := relay.New(3, nil, logger)
	defer r.Close()

	at := time.Date(2026, 10, 14, 18, 4, 5, 0, time.Local)
	require.NoError(t, r.Publish(relay.Reading{Temperature: 25, Humidity: 55, ObservedAt: at}))

	srv := httptest.NewServer(NewHandler(r, logger, Options{PingInterval: time.Second}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	first := readUpdate(t, ctx, conn)
	assert.Equal(t, relay.EventSensorUpdate, first.Type)
	require.NotNil(t, first.Data.Current)
	assert.Equal(t, 25.0, first.Data.Current.Temperature)
	assert.Equal(t, "18:04:05", first.Data.Current.Timestamp)
	assert.Len(t, first.Data.History, 1)

	require.NoError(t, r.Publish(relay.Reading{Temperature: 26, Humidity: 56, ObservedAt: at.Add(time.Second)}))
	second := readUpdate(t, ctx, conn)
	assert.Equal(t, 26.0, second.Data.Current.Temperature)
	assert.Equal(t, "18:04:06", second.Data.History[1].Timestamp)

	conn.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return r.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerReturnsDuringPingWhenSubscriptionEnds(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := relay.New(3, nil, logger)
	defer r.Close()

	h := NewHandler(r, logger, Options{PingInterval: 50 * time.Millisecond, PingTimeout: time.Minute})
	assert.Equal(t, 50*time.Millisecond, h.pingTimeout)
	h.pingTimeout = time.Minute

	returned := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer close(returned)
		h.ServeHTTP(w, req)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	readUpdate(t, ctx, conn)
	// the client stops reading, so the next ping waits for a pong that
	// never comes
	time.Sleep(200 * time.Millisecond)

	r.Close()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("handler kept waiting on a ping after the subscription ended")
	}
}
