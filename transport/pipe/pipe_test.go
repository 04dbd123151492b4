package pipe

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/kirides/sensor-relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readEnvelope(t *testing.T, conn net.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	frame, err := ReadFrame(conn, nil)
	require.NoError(t, err)

	var e envelope
	require.NoError(t, json.Unmarshal(frame, &e))
	return e
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"type":"ping"}`)))
	require.NoError(t, WriteFrame(&buf, nil))
	assert.Equal(t, []byte{15, 0, 0, 0}, buf.Bytes()[:4])

	first, err := ReadFrame(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ping"}`, string(first))

	second, err := ReadFrame(&buf, make([]byte, 0, 4))
	require.NoError(t, err)
	assert.Empty(t, second)

	_, err = ReadFrame(&buf, nil)
	assert.ErrorIs(t, err, io.EOF)

	big := bytes.Repeat([]byte("x"), 70000)
	require.NoError(t, WriteFrame(&buf, big))
	got, err := ReadFrame(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, big, got)

	assert.ErrorIs(t, WriteFrame(&buf, make([]byte, MaxFrameSize+1)), ErrFrameTooLarge)

	oversized := bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff})
	_, err = ReadFrame(oversized, nil)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestServeConnDeliversLargeHistory(t *testing.T) {
	const size = 1500
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := relay.New(size, nil, logger)
	defer r.Close()

	at := time.Date(2026, 10, 14, 8, 0, 0, 0, time.Local)
	for i := 0; i < size; i++ {
		require.NoError(t, r.Publish(relay.Reading{Temperature: -12.345678, Humidity: 99.87654, ObservedAt: at.Add(time.Duration(i) * time.Second)}))
	}

	srv := NewServer(r, logger, time.Minute)
	client, server := net.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(ctx, server)
	}()

	first := readEnvelope(t, client)
	require.Greater(t, len(first.Data), 1<<16)
	var payload relay.Payload
	require.NoError(t, json.Unmarshal(first.Data, &payload))
	assert.Len(t, payload.History, size)
	assert.Equal(t, 1, r.Subscribers())

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return after the client left")
	}
}

func TestServeConnPushesSnapshotsAndPings(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := relay.New(5, nil, logger)
	defer r.Close()

	srv := NewServer(r, logger, 100*time.Millisecond)
	client, server := net.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(ctx, server)
	}()

	first := readEnvelope(t, client)
	assert.Equal(t, relay.EventSensorUpdate, first.Type)
	var payload relay.Payload
	require.NoError(t, json.Unmarshal(first.Data, &payload))
	assert.Nil(t, payload.Current)

	require.NoError(t, r.Publish(relay.Reading{Temperature: 19.5, Humidity: 70, ObservedAt: time.Now()}))

	var sawUpdate, sawPing bool
	for !(sawUpdate && sawPing) {
		e := readEnvelope(t, client)
		switch e.Type {
		case "ping":
			sawPing = true
		case relay.EventSensorUpdate:
			require.NoError(t, json.Unmarshal(e.Data, &payload))
			require.NotNil(t, payload.Current)
			assert.Equal(t, 19.5, payload.Current.Temperature)
			sawUpdate = true
		}
	}

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return after the client left")
	}
	assert.Equal(t, 0, r.Subscribers())
}
