package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readEvent reads one "event:/data:" frame from the stream.
func readEvent(t *testing.T, r *bufio.Reader) (string, map[string]any) {
	t.Helper()

	var eventType string
	var payload map[string]any
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
		case line == "" && eventType != "":
			return eventType, payload
		}
	}
}

func TestHandler_StreamsChangesFromOtherDevices(t *testing.T) {
	m := startManager(t)
	h := NewHandler(m, func(*http.Request) string { return "phone" }, testLogger())

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?device_id=device-b", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	eventType, payload := readEvent(t, reader)
	assert.Equal(t, "connected", eventType)
	data := payload["data"].(map[string]any)
	assert.Equal(t, "device-b", data["device_id"])

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	for c := range m.Clients() {
		assert.Equal(t, "phone", c.TokenName)
	}

	// Own changes are suppressed; another device's are delivered.
	m.ChangesAvailable("device-b", time.Now(), 1)
	m.ChangesAvailable("device-a", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), 2)

	eventType, payload = readEvent(t, reader)
	assert.Equal(t, "changes_available", eventType)
	data = payload["data"].(map[string]any)
	assert.Equal(t, "device-a", data["device_id"])
	assert.Equal(t, float64(2), data["accepted"])
	assert.Equal(t, "2024-06-01T12:00:00Z", data["server_time"])
}

func TestHandler_RejectsNonGet(t *testing.T) {
	h := NewHandler(NewManager(testLogger()), nil, testLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync/events", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_DisconnectsOnShutdown(t *testing.T) {
	m := NewManager(testLogger())
	go m.Start(context.Background())
	h := NewHandler(m, nil, testLogger())

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	eventType, _ := readEvent(t, reader)
	require.Equal(t, "connected", eventType)

	require.NoError(t, m.Shutdown(context.Background()))

	// The handler returns, which ends the response body.
	_, err = reader.ReadString('\n')
	assert.Error(t, err)
}
