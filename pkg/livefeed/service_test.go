package livefeed

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchlab/pvlogger/pkg/types"
)

func testSample(v float64) *types.Sample {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Sample{
		CaptureTime: now,
		Readings: []types.Reading{
			{Name: "temp", Value: types.Number(v), Timestamp: now},
		},
	}
}

func TestLatestEndpoint(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/latest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, hub.Record(testSample(21.5)))

	resp, err = http.Get(srv.URL + "/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	sample := types.SampleFromJsonBytes(body)
	require.NotNil(t, sample)
	require.Len(t, sample.Readings, 1)
	assert.Equal(t, types.Number(21.5), sample.Readings[0].Value)
}

func TestWebsocketBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the client.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, hub.Record(testSample(42)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	sample := types.SampleFromJsonBytes(message)
	require.NotNil(t, sample)
	require.Len(t, sample.Readings, 1)
	assert.Equal(t, types.Number(42), sample.Readings[0].Value)
}

func TestWebsocketSendsLatestOnConnect(t *testing.T) {
	hub := NewHub()
	require.NoError(t, hub.Record(testSample(7)))

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	sample := types.SampleFromJsonBytes(message)
	require.NotNil(t, sample)
	assert.Equal(t, types.Number(7), sample.Readings[0].Value)
}
