package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pythia/internal/pipeline"
	"github.com/fortuna/pythia/internal/store"
)

type staticSlate struct{ slate *pipeline.Slate }

func (s staticSlate) Latest() *pipeline.Slate { return s.slate }

func slate(runID string, ids ...string) *pipeline.Slate {
	s := &pipeline.Slate{Report: &pipeline.Report{RunID: runID, Status: pipeline.StatusOK}}
	for _, id := range ids {
		s.Predictions = append(s.Predictions, &store.Prediction{GameID: id, Sport: "nfl"})
	}
	return s
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/predictions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestPredictionsFeed(t *testing.T) {
	s := NewServer(staticSlate{slate("run-1", "401")}, nil, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.Shutdown(context.Background())

	conn := dial(t, ts)
	first := read(t, conn)
	assert.Equal(t, MessageTypePredictions, first.Type)
	assert.Equal(t, "run-1", first.RunID)
	require.Len(t, first.Data, 1)
	assert.Equal(t, "401", first.Data[0].GameID)

	assert.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	next := slate("run-2", "402", "403")
	s.OnRun(context.Background(), next.Report, next)
	msg := read(t, conn)
	assert.Equal(t, "run-2", msg.RunID)
	assert.Len(t, msg.Data, 2)

	conn.Close()
	assert.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestNoSlateYet(t *testing.T) {
	s := NewServer(staticSlate{}, nil, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.Shutdown(context.Background())

	conn := dial(t, ts)
	assert.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	failed := slate("run-x", "1")
	failed.Report.Status = pipeline.StatusFailed
	s.OnRun(context.Background(), failed.Report, failed)

	empty := slate("run-3")
	s.OnRun(context.Background(), empty.Report, empty)
	msg := read(t, conn)
	assert.Equal(t, "run-3", msg.RunID)
	assert.NotNil(t, msg.Data)
	assert.Empty(t, msg.Data)
}

func TestHealth(t *testing.T) {
	s := NewServer(nil, nil, nil)
	defer s.Shutdown(context.Background())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"healthy","clients":0}`, string(body))
}

func TestShutdownDisconnectsClients(t *testing.T) {
	s := NewServer(nil, nil, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	assert.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	// broadcasting after shutdown must not block
	done := slate("run-4", "1")
	s.OnRun(context.Background(), done.Report, done)
}
