package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// IdentityFunc names the authenticated caller of a request.
type IdentityFunc func(r *http.Request) string

// Handler serves the event stream at GET /api/v1/sync/events.
// Devices pass ?device_id= so they are not told about their own syncs.
type Handler struct {
	manager  *Manager
	identity IdentityFunc
	logger   *slog.Logger
}

// NewHandler creates a new SSE Handler. identity may be nil.
func NewHandler(manager *Manager, identity IdentityFunc, logger *slog.Logger) *Handler {
	if identity == nil {
		identity = func(*http.Request) string { return "" }
	}
	return &Handler{
		manager:  manager,
		identity: identity,
		logger:   logger,
	}
}

// ServeHTTP handles the SSE connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Early client disconnect.
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)

	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	client, err := h.manager.Connect(h.identity(r), deviceID)
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	clientLogger := h.logger.With(slog.String("client_id", client.ID))

	connected := Event{
		Type:      EventConnected,
		Timestamp: time.Now().UTC(),
		Data:      ConnectedEventData{ClientID: client.ID, DeviceID: deviceID},
	}
	if err := h.sendEvent(w, rc, connected); err != nil {
		clientLogger.Warn("failed to send initial connection message", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()
	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				clientLogger.Info("client closed by manager")
				return
			}
			if err := h.sendEvent(w, rc, event); err != nil {
				// Client disconnect is normal, not an error condition.
				clientLogger.Info("client disconnected during send")
				return
			}

		case <-client.Done:
			clientLogger.Info("client closed by manager")
			return

		case <-ctx.Done():
			clientLogger.Debug("client context canceled")
			return
		}
	}
}

// sendEvent writes one event in SSE framing and flushes it.
func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, jsonData); err != nil {
		return err
	}

	if err := rc.Flush(); err != nil {
		return err
	}

	// Reset after each successful write so hung connections time out.
	if err := rc.SetWriteDeadline(time.Now().Add(2 * DefaultHeartbeatInterval)); err != nil {
		// Not supported by every ResponseWriter (httptest.ResponseRecorder).
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}

	return nil
}
